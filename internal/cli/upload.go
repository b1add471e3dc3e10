package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"spese-cli/internal/audio"
)

func NewUploadCmd(deps *Dependencies) *cobra.Command {
	var (
		receipt bool
		queue   bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an existing voice memo or receipt photo",
		Long:  "Upload an audio file or, with --receipt, an image of a receipt. Images are detected\nautomatically when --receipt is not given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, deps)
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			name := filepath.Base(path)
			kind := audio.KindAudio
			if receipt || audio.KindReceipt.Accepts(audio.DetectMIME(name, data)) {
				kind = audio.KindReceipt
			}

			s := deps.App.NewSession(kind, nil, nil)
			defer s.Close()

			if err := s.SelectFile(name, data); err != nil {
				return userError(s, err)
			}
			return submit(cmd.Context(), deps, s, f, queue)
		},
	}

	cmd.Flags().BoolVar(&receipt, "receipt", false, "The file is a receipt image")
	cmd.Flags().BoolVar(&queue, "queue", true, "Queue the upload in the outbox when the server does not respond")

	return cmd
}
