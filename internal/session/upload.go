package session

import (
	"context"

	"spese-cli/internal/api"
	"spese-cli/internal/core"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
)

// Upload submits the artifact. On success the session holds the created
// expense and releases the artifact. On failure it moves to error with a
// classified message and keeps the artifact, so Upload can be retried.
func (s *Session) Upload(ctx context.Context) (*core.Expense, error) {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		return nil, s.rejectLocked(err)
	}
	if s.status == StatusRecording || s.status == StatusPaused {
		return nil, s.rejectLocked(ErrBusy)
	}
	if s.artifact == nil || (s.status != StatusStopped && s.status != StatusError) {
		s.mu.Unlock()
		return nil, ErrNoArtifact
	}
	if s.uploader == nil {
		err := &api.Error{Kind: api.KindRequestSetup, Message: "no uploader configured"}
		s.failLocked(i18n.MsgUploadSetup, err)
		s.unlockAndEmit()
		return nil, err
	}
	artifact := s.artifact
	gen := s.gen
	s.message, s.err = "", nil
	s.setStatusLocked(StatusUploading)
	s.unlockAndEmit()

	res, err := s.uploader.UploadExpense(api.WithSessionID(ctx, s.id), artifact)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil, ErrDiscarded
	}
	if err != nil {
		s.setStatusLocked(StatusError)
		s.failUploadLocked(err)
		s.unlockAndEmit()
		s.events.LogError(ctx, "Upload failed", err, log.OpUpload,
			log.NewFields().WithSession(s.id).WithArtifact(artifact.MIMEType(), artifact.Size()))
		return nil, err
	}

	e := res.Expense
	s.expense = &e
	s.message = s.localizer.T(i18n.MsgExpenseSubmitted, e.Description, s.localizer.Amount(e.Amount), e.Category, e.Subcategory)
	s.err = nil
	r := s.detachLocked()
	s.setStatusLocked(StatusSubmitted)
	s.unlockAndEmit()

	r.release()
	if s.renderer != nil {
		s.renderer.Reset()
	}
	out := e
	return &out, nil
}

// failUploadLocked sets the message for an upload error. Rejections by the
// server are shown with the server's own text.
func (s *Session) failUploadLocked(err error) {
	switch api.KindOf(err) {
	case api.KindUnprocessable:
		s.failLocked(i18n.MsgUploadUnprocessable, err)
	case api.KindServer, api.KindConflict:
		if msg := api.ServerMessage(err); msg != "" {
			s.failLocked(i18n.MsgUploadServer, err, msg)
			return
		}
		s.failLocked(i18n.MsgGeneric, err)
	case api.KindNoResponse:
		s.failLocked(i18n.MsgUploadNoResponse, err)
	case api.KindRequestSetup:
		s.failLocked(i18n.MsgUploadSetup, err)
	default:
		s.failLocked(i18n.MsgGeneric, err)
	}
}
