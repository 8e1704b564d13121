package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const questionsPrompt = "You are provided some documents. Figure out what product or subject each document covers, " +
	"based on its first page. DO NOT GUESS OR HALLUCINATE THE SUBJECT. Then, for each subject, generate 4 short and " +
	"practical example questions a user might ask about it in English. Return the questions as a JSON array of " +
	"objects. Each object should have a 'product' key with the subject name as a string, and a 'questions' key " +
	"with an array of 4 question strings. For example: " +
	"```json[{\"product\": \"Product A\", \"questions\": [\"q1\", \"q2\"]}]```"

// FallbackQuestions are returned whenever generation does not yield a
// usable list.
var FallbackQuestions = []string{
	"What is this document about?",
	"Summarize the key points.",
	"What are the important details?",
	"Can you explain the main concepts?",
}

var (
	errUnexpectedFormat = errors.New("assistant: unexpected example question format")
	jsonFence           = regexp.MustCompile("(?s)```json\\s*\n(.*?)\n\\s*```")
)

// ExampleQuestions asks the model for example questions about the
// project's documents. Output that does not parse is regenerated up to
// three times in all, a second apart. A generation error, or output that
// never parses, yields FallbackQuestions. Only failing to look up the
// store is an error.
func (s *Service) ExampleQuestions(ctx context.Context, project string) ([]string, error) {
	storeID, found, err := s.dir.Find(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("assistant: resolving store for %s: %w", project, err)
	}

	if !found {
		return FallbackQuestions, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ans, err := s.generate(ctx, questionsPrompt, storeID)
		if err != nil {
			s.logger.Warn("example questions unavailable, using fallbacks", slog.String("error", err.Error()))
			return FallbackQuestions, nil
		}

		questions, err := parseQuestions(ans.Text)
		switch {
		case err == nil:
			return questions, nil
		case errors.Is(err, errUnexpectedFormat):
			// Well-formed JSON of the wrong shape is not worth regenerating.
			return FallbackQuestions, nil
		case attempt == s.maxAttempts:
			s.logger.Warn("example questions did not parse, using fallbacks", slog.String("error", err.Error()))
			return FallbackQuestions, nil
		}

		s.logger.Debug("regenerating example questions",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if err := s.sleepFunc(ctx, reparseDelay); err != nil {
			return FallbackQuestions, nil
		}
	}

	return FallbackQuestions, nil
}

// parseQuestions extracts the question list from model output. It accepts
// [{"product": ..., "questions": [...]}] and a plain array of strings.
func parseQuestions(text string) ([]string, error) {
	raw := extractJSON(strings.TrimSpace(text))

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("assistant: decoding example questions: %w", err)
	}

	if len(items) == 0 {
		return FallbackQuestions, nil
	}

	var grouped []struct {
		Product   string   `json:"product"`
		Questions []string `json:"questions"`
	}

	if err := json.Unmarshal([]byte(raw), &grouped); err == nil && grouped[0].Questions != nil {
		var out []string
		for _, g := range grouped {
			out = append(out, g.Questions...)
		}

		return out, nil
	}

	var flat []any
	if err := json.Unmarshal([]byte(raw), &flat); err == nil {
		if _, ok := flat[0].(string); ok {
			var out []string
			for _, v := range flat {
				if q, ok := v.(string); ok {
					out = append(out, q)
				}
			}

			return out, nil
		}
	}

	return nil, errUnexpectedFormat
}

// extractJSON prefers a ```json fence, then the outermost brackets.
func extractJSON(text string) string {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	first := strings.Index(text, "[")
	last := strings.LastIndex(text, "]")

	if first != -1 && last > first {
		return text[first : last+1]
	}

	return text
}
