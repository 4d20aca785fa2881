// Package solver turns a question, typed or photographed, into the model's answer text.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alsolver/alsolver/internal/llm"
	"github.com/alsolver/alsolver/internal/ocr"
	"github.com/alsolver/alsolver/internal/prompt"
)

// Failure classes. Each one maps to its own user-facing message.
var (
	ErrDownload     = errors.New("image download failed")
	ErrOCRFailed    = errors.New("OCR failed")
	ErrNoText       = errors.New("no text found in image")
	ErrModelFailed  = errors.New("model failed")
	ErrVisionFailed = errors.New("vision model failed")
)

// ImageSolver answers a question shown in an image.
type ImageSolver interface {
	SolveFromImage(ctx context.Context, image []byte, mimeType, language string) (string, error)
}

// Observer receives the duration of each external call. *metrics.Collector satisfies it.
type Observer interface {
	ObserveStage(stage string, err error, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, error, time.Duration) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// TextSolver answers typed questions.
type TextSolver struct {
	model    llm.Client
	observer Observer
}

func NewTextSolver(model llm.Client, observer Observer) *TextSolver {
	return &TextSolver{model: model, observer: observerOrNop(observer)}
}

func (s *TextSolver) Solve(ctx context.Context, question, language string) (string, error) {
	return generate(ctx, s.model, s.observer, "llm", llm.Request{Prompt: prompt.BuildTextPrompt(question, language)}, ErrModelFailed)
}

// OCRSolver reads the image with OCR and sends the text to the text model.
type OCRSolver struct {
	ocr      ocr.Extractor
	model    llm.Client
	observer Observer
}

func NewOCRSolver(extractor ocr.Extractor, model llm.Client, observer Observer) *OCRSolver {
	return &OCRSolver{ocr: extractor, model: model, observer: observerOrNop(observer)}
}

func (s *OCRSolver) SolveFromImage(ctx context.Context, image []byte, mimeType, language string) (string, error) {
	start := time.Now()
	text, err := s.ocr.ExtractText(ctx, image, mimeType)
	s.observer.ObserveStage("ocr", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOCRFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}

	return generate(ctx, s.model, s.observer, "llm", llm.Request{Prompt: prompt.BuildTextPrompt(text, language)}, ErrModelFailed)
}

// VisionSolver sends the image inline to a multimodal model.
type VisionSolver struct {
	model    llm.Client
	observer Observer
}

func NewVisionSolver(model llm.Client, observer Observer) *VisionSolver {
	return &VisionSolver{model: model, observer: observerOrNop(observer)}
}

func (s *VisionSolver) SolveFromImage(ctx context.Context, image []byte, mimeType, language string) (string, error) {
	req := llm.Request{
		Prompt:   prompt.BuildVisionPrompt(language),
		Image:    image,
		MIMEType: mimeType,
	}
	return generate(ctx, s.model, s.observer, "vision", req, ErrVisionFailed)
}

func generate(ctx context.Context, model llm.Client, observer Observer, stage string, req llm.Request, class error) (string, error) {
	start := time.Now()
	answer, err := model.Generate(ctx, req)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("%w: empty answer", llm.ErrModelCall)
	}
	observer.ObserveStage(stage, err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", class, err)
	}
	return answer, nil
}
