package recognizer

import (
	"fmt"

	"github.com/nadzzz/dunning/internal/message"
)

// ModelNotFoundError reports that the recognition assets for a language are
// not installed on this host. It is a deployment problem, not a bad request.
type ModelNotFoundError struct {
	Language message.Language
	// Path is where the model was expected, if the backend knows.
	Path string
}

func (e *ModelNotFoundError) Error() string {
	switch {
	case e.Language == message.LanguageAuto || e.Language == "":
		return "no recognition model is available"
	case e.Path != "":
		return fmt.Sprintf("recognition model for %s not found at %s", e.Language, e.Path)
	}
	return fmt.Sprintf("recognition model for %s not found", e.Language)
}

// RecognitionError reports that the engine failed on otherwise valid input.
type RecognitionError struct {
	Language message.Language
	// Op is "load" or "transcribe".
	Op  string
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition %s (%s): %v", e.Op, e.Language, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
