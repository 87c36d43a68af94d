package answerkey

import (
	"context"
	"fmt"
	"log"
	"time"

	"screen-grader/src/config"
	"screen-grader/src/credentials"
	"screen-grader/src/llm"
	"screen-grader/src/ocr"
)

const (
	StatusRecognizing  = "OCR..."
	StatusInterpreting = "Calling Kimi text model..."
)

// Recognizer extracts text from an encoded image.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte, apiKey string, timeout time.Duration) (string, error)
}

// Interpreter turns a prompt into the model's raw answer.
type Interpreter interface {
	Interpret(ctx context.Context, prompt, apiKey string, timeout time.Duration) (string, error)
}

// FromConfig wires the OCR.space and Moonshot clients described by cfg.
func FromConfig(cfg *config.Config) *Pipeline {
	return &Pipeline{
		Recognizer:     ocr.New(cfg.OCREndpoint, cfg.OCRLanguage, cfg.OCREngine),
		Interpreter:    llm.New(cfg.LLMBaseURL, cfg.LLMModel),
		OCRTimeout:     time.Duration(cfg.OCRTimeoutSec) * time.Second,
		LLMTimeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		MaxPromptChars: cfg.MaxPromptChars,
	}
}

// Pipeline chains recognition, prompting, interpretation and normalization.
type Pipeline struct {
	Recognizer     Recognizer
	Interpreter    Interpreter
	OCRTimeout     time.Duration
	LLMTimeout     time.Duration
	MaxPromptChars int
}

// Run grades one cropped image. status, when non-nil, receives advisory
// text before each network stage. Stages run strictly in order and the
// first failure ends the run.
func (p *Pipeline) Run(ctx context.Context, png []byte, creds credentials.Credentials, status func(string)) (string, error) {
	report := func(s string) {
		if status != nil {
			status(s)
		}
	}

	report(StatusRecognizing)
	text, err := p.Recognizer.Recognize(ctx, png, creds.OCRKey, p.OCRTimeout)
	if err != nil {
		return "", err
	}

	prompt := BuildPrompt(text, p.MaxPromptChars)
	log.Printf("AnswerKey: prompt built from %d chars of OCR text", len([]rune(text)))

	report(StatusInterpreting)
	raw, err := p.Interpreter.Interpret(ctx, prompt, creds.LLMKey, p.LLMTimeout)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("run aborted: %w", err)
	}

	return Normalize(raw), nil
}
