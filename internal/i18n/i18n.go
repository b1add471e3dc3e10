// Package i18n holds the user-facing message catalogs of the client.
package i18n

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys
const (
	MsgPermissionDenied         = "permission_denied"
	MsgDeviceUnavailable        = "device_unavailable"
	MsgPlaybackFailed           = "playback_failed"
	MsgUploadUnprocessable      = "upload_unprocessable"
	MsgUploadNoResponse         = "upload_no_response"
	MsgUploadSetup              = "upload_setup"
	MsgUploadServer             = "upload_server"
	MsgUnsupportedAudio         = "unsupported_media_audio"
	MsgUnsupportedImage         = "unsupported_media_image"
	MsgCategoryHasSubcategories = "category_has_subcategories"
	MsgExpenseSubmitted         = "expense_submitted"
	MsgUploadQueued             = "upload_queued"
	MsgBusy                     = "busy"
	MsgGeneric                  = "generic"

	MsgCategoryCreated    = "category_created"
	MsgCategoryRenamed    = "category_renamed"
	MsgCategoryDeleted    = "category_deleted"
	MsgNothingDeleted     = "nothing_deleted"
	MsgSubcategoryCreated = "subcategory_created"
	MsgSubcategoryRenamed = "subcategory_renamed"
	MsgSubcategoryDeleted = "subcategory_deleted"
	MsgRecordingDiscarded = "recording_discarded"
	MsgRecordingSaved     = "recording_saved"
	MsgReviewPrompt       = "review_prompt"
)

var supported = []language.Tag{language.English, language.Italian}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[string]string{
	language.English: {
		MsgPermissionDenied:         "Microphone access was denied. Allow access and try again.",
		MsgDeviceUnavailable:        "No usable recording device was found.",
		MsgPlaybackFailed:           "The recording could not be played back.",
		MsgUploadUnprocessable:      "No expense could be identified in the uploaded file. Try again or discard it.",
		MsgUploadNoResponse:         "The server did not respond. Check your connection and retry.",
		MsgUploadSetup:              "The upload could not be prepared.",
		MsgUploadServer:             "The server rejected the upload: %s",
		MsgUnsupportedAudio:         "The selected file is not an audio file.",
		MsgUnsupportedImage:         "The selected file is not an image.",
		MsgCategoryHasSubcategories: "Category %q has subcategories. Delete it together with all its subcategories?",
		MsgExpenseSubmitted:         "Expense %q of %s saved in %s / %s.",
		MsgUploadQueued:             "The upload was queued and will be retried when the server is reachable.",
		MsgBusy:                     "Another operation is in progress.",
		MsgGeneric:                  "Something went wrong. Please try again.",

		MsgCategoryCreated:    "Category #%d %s created",
		MsgCategoryRenamed:    "Category #%d renamed to %s",
		MsgCategoryDeleted:    "Category #%d deleted",
		MsgNothingDeleted:     "Nothing deleted",
		MsgSubcategoryCreated: "Subcategory #%d %s created",
		MsgSubcategoryRenamed: "Subcategory #%d is now %s",
		MsgSubcategoryDeleted: "Subcategory #%d deleted",
		MsgRecordingDiscarded: "Recording discarded",
		MsgRecordingSaved:     "Recording saved: %s",
		MsgReviewPrompt:       "[u]pload  [p]lay/pause  [d]iscard > ",
	},
	language.Italian: {
		MsgPermissionDenied:         "Accesso al microfono negato. Consenti l'accesso e riprova.",
		MsgDeviceUnavailable:        "Nessun dispositivo di registrazione disponibile.",
		MsgPlaybackFailed:           "Impossibile riprodurre la registrazione.",
		MsgUploadUnprocessable:      "Nessuna spesa riconosciuta nel file caricato. Riprova o scartalo.",
		MsgUploadNoResponse:         "Il server non risponde. Controlla la connessione e riprova.",
		MsgUploadSetup:              "Impossibile preparare il caricamento.",
		MsgUploadServer:             "Il server ha rifiutato il caricamento: %s",
		MsgUnsupportedAudio:         "Il file selezionato non è un file audio.",
		MsgUnsupportedImage:         "Il file selezionato non è un'immagine.",
		MsgCategoryHasSubcategories: "La categoria %q ha delle sottocategorie. Eliminarla insieme a tutte le sue sottocategorie?",
		MsgExpenseSubmitted:         "Spesa %q di %s salvata in %s / %s.",
		MsgUploadQueued:             "Il caricamento è stato messo in coda e verrà ritentato quando il server sarà raggiungibile.",
		MsgBusy:                     "Un'altra operazione è in corso.",
		MsgGeneric:                  "Qualcosa è andato storto. Riprova.",

		MsgCategoryCreated:    "Categoria #%d %s creata",
		MsgCategoryRenamed:    "Categoria #%d rinominata in %s",
		MsgCategoryDeleted:    "Categoria #%d eliminata",
		MsgNothingDeleted:     "Nessuna eliminazione",
		MsgSubcategoryCreated: "Sottocategoria #%d %s creata",
		MsgSubcategoryRenamed: "La sottocategoria #%d ora è %s",
		MsgSubcategoryDeleted: "Sottocategoria #%d eliminata",
		MsgRecordingDiscarded: "Registrazione scartata",
		MsgRecordingSaved:     "Registrazione salvata: %s",
		MsgReviewPrompt:       "[u] carica  [p] riproduci/pausa  [d] scarta > ",
	},
}

var builder = newBuilder()

func newBuilder() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(fmt.Sprintf("i18n: invalid message %s/%s: %v", tag, key, err))
			}
		}
	}
	return b
}

// Localizer renders messages and amounts for one language
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
	unit    currency.Unit
}

// New returns a localizer for lang (BCP 47, e.g. "it" or "en-GB") and an
// ISO 4217 currency code. Unknown languages fall back to English and unknown
// currencies to EUR.
func New(lang, code string) *Localizer {
	tag := language.English
	if parsed, err := language.Parse(lang); err == nil {
		_, idx, _ := matcher.Match(parsed)
		tag = supported[idx]
	}

	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.EUR
	}

	return &Localizer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(builder)),
		unit:    unit,
	}
}

// Language returns the matched language tag
func (l *Localizer) Language() language.Tag {
	return l.tag
}

// T renders the message for key with args
func (l *Localizer) T(key string, args ...any) string {
	return l.printer.Sprintf(key, args...)
}

// Amount formats d in the configured currency, e.g. "€ 12.50"
func (l *Localizer) Amount(d decimal.Decimal) string {
	return l.printer.Sprint(currency.Symbol(l.unit.Amount(d.InexactFloat64())))
}
