package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/classifier"
	"github.com/nadzzz/dunning/internal/langdetect"
	"github.com/nadzzz/dunning/internal/message"
)

func newClassifyCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "classify [flags] text...",
		Short: "Classify a reply without recognition",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lex, err := loadLexicon(cfg)
			if err != nil {
				return err
			}
			loc, err := cfg.Classifier.Location()
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			l, ok := message.ParsePreference(lang)
			if !ok {
				return fmt.Errorf("unsupported language %q", lang)
			}
			if l == message.LanguageAuto {
				if l = langdetect.New(lex).Detect(text); l == message.LanguageUnknown {
					l = message.LanguageRU
				}
			}

			cls := classifier.New(lex, classifier.WithLocation(loc))
			res := cls.Classify(text, l)
			return printJSON(cmd.OutOrStdout(), message.TextResult{
				Success:          true,
				RequestID:        message.NewRequestID(),
				Timestamp:        time.Now().UTC(),
				Text:             text,
				DetectedLanguage: l,
				Classification: message.Classification{
					ClassificationResult: res,
					CategoryDescription:  cls.Describe(res.Category, l),
				},
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "auto", "reply language: ru, kk or auto")
	return cmd
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect text...",
		Short: "Detect whether text is Russian or Kazakh",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lex, err := loadLexicon(cfg)
			if err != nil {
				return err
			}
			l, conf := langdetect.New(lex).DetectWithConfidence(strings.Join(args, " "))
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"language":   l,
				"confidence": conf,
			})
		},
	}
}

func newCheckAudioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-audio file.wav...",
		Short: "Check that files are 16 kHz mono 16-bit WAV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err == nil {
					var s *audio.Stream
					if s, err = audio.Validate(data); err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%.2fs)\n", path, s.Duration().Seconds())
						continue
					}
				}
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files rejected", failed, len(args))
			}
			return nil
		},
	}
}
