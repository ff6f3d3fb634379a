package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
	"gorm.io/gorm"

	"satchel/internal/blob"
	"satchel/internal/userfile"
)

const thumbSize = 256

// Annotator turns extracted text into a markdown rendition. The AI-backed
// implementation lives outside the core; the pipeline degrades to a local
// deterministic rendition when none is wired.
type Annotator interface {
	Markdown(ctx context.Context, name, text string) (string, error)
}

// Pipeline holds the stage handlers. Derived object keys are a pure
// function of the file id, so a reclaimed job re-derives and overwrites
// rather than duplicating: every stage is safe to run again from scratch.
type Pipeline struct {
	Blobs     blob.Store
	DB        *gorm.DB
	Annotator Annotator
}

func (p *Pipeline) RunStage(ctx context.Context, job *Job, stage Stage) error {
	switch stage {
	case StageValidating:
		return p.validate(ctx, job)
	case StageConverting:
		return p.convert(ctx, job)
	case StageExtracting:
		return p.extract(ctx, job)
	case StageAIMarkdown:
		return p.annotate(ctx, job)
	case StageThumb:
		return p.thumbnail(ctx, job)
	case StageFinalizing:
		return p.finalize(ctx, job)
	}
	return Permanent(CodeInternal, "unknown stage %q", stage)
}

func (p *Pipeline) validate(ctx context.Context, job *Job) error {
	data, err := p.Blobs.Get(ctx, job.ObjectKey)
	if errors.Is(err, blob.ErrNotFound) {
		return Permanent(CodeValidation, "source object %s missing", job.ObjectKey)
	}
	if err != nil {
		return Retryable(CodeStorage, "read source: %v", err)
	}
	if len(data) == 0 {
		return Permanent(CodeValidation, "empty file")
	}
	return nil
}

func (p *Pipeline) convert(ctx context.Context, job *Job) error {
	if !isText(job.ContentType) {
		return nil // binary formats pass through untouched
	}
	data, err := p.Blobs.Get(ctx, job.ObjectKey)
	if err != nil {
		return Retryable(CodeStorage, "read source: %v", err)
	}
	canonical := strings.ToValidUTF8(strings.ReplaceAll(string(data), "\r\n", "\n"), "")
	if err := p.Blobs.Put(ctx, canonicalKey(job), []byte(canonical), "text/plain; charset=utf-8"); err != nil {
		return Retryable(CodeConvert, "write canonical: %v", err)
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, job *Job) error {
	var text string
	switch {
	case job.ContentType == "application/pdf":
		data, err := p.Blobs.Get(ctx, job.ObjectKey)
		if err != nil {
			return Retryable(CodeStorage, "read source: %v", err)
		}
		text, err = pdfText(data)
		if err != nil {
			// a corrupt document stays corrupt on retry
			return Permanent(CodeExtract, "pdf: %v", err)
		}
	case isText(job.ContentType):
		data, err := p.Blobs.Get(ctx, canonicalKey(job))
		if errors.Is(err, blob.ErrNotFound) {
			data, err = p.Blobs.Get(ctx, job.ObjectKey)
		}
		if err != nil {
			return Retryable(CodeStorage, "read canonical: %v", err)
		}
		text = string(data)
	default:
		return nil // nothing to extract from
	}
	if err := p.Blobs.Put(ctx, textKey(job), []byte(text), "text/plain; charset=utf-8"); err != nil {
		return Retryable(CodeStorage, "write text: %v", err)
	}
	return nil
}

func (p *Pipeline) annotate(ctx context.Context, job *Job) error {
	var text string
	data, err := p.Blobs.Get(ctx, textKey(job))
	if err == nil {
		text = string(data)
	} else if !errors.Is(err, blob.ErrNotFound) {
		return Retryable(CodeStorage, "read text: %v", err)
	}

	md := localMarkdown(job.FileName, text)
	if p.Annotator != nil {
		annotated, err := p.Annotator.Markdown(ctx, job.FileName, text)
		if err != nil {
			return Retryable(CodeInternal, "annotate: %v", err)
		}
		md = annotated
	}
	if err := p.Blobs.Put(ctx, markdownKey(job), []byte(md), "text/markdown; charset=utf-8"); err != nil {
		return Retryable(CodeStorage, "write markdown: %v", err)
	}
	return nil
}

func (p *Pipeline) thumbnail(ctx context.Context, job *Job) error {
	if !strings.HasPrefix(job.ContentType, "image/") {
		return nil
	}
	data, err := p.Blobs.Get(ctx, job.ObjectKey)
	if err != nil {
		return Retryable(CodeStorage, "read source: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Permanent(CodeThumb, "decode image: %v", err)
	}
	thumb := imaging.Thumbnail(img, thumbSize, thumbSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return Permanent(CodeThumb, "encode thumbnail: %v", err)
	}
	if err := p.Blobs.Put(ctx, thumbKey(job), buf.Bytes(), "image/jpeg"); err != nil {
		return Retryable(CodeStorage, "write thumbnail: %v", err)
	}
	return nil
}

// finalize records the derived keys on the file row. Existence checks make
// it resumable: whatever earlier stages produced is what gets linked.
func (p *Pipeline) finalize(ctx context.Context, job *Job) error {
	updates := map[string]any{"updated_at": time.Now()}
	for column, key := range map[string]string{
		"text_key":     textKey(job),
		"markdown_key": markdownKey(job),
		"thumb_key":    thumbKey(job),
	} {
		if _, err := p.Blobs.Get(ctx, key); err == nil {
			updates[column] = key
		} else if !errors.Is(err, blob.ErrNotFound) {
			return Retryable(CodeStorage, "check %s: %v", key, err)
		}
	}

	err := p.DB.WithContext(ctx).Model(&userfile.File{}).
		Where("id=? AND user_id=?", job.FileID, job.UserID).
		Updates(updates).Error
	if err != nil {
		return Retryable(CodeInternal, "finalize file row: %v", err)
	}
	return nil
}

func canonicalKey(job *Job) string { return "derived/" + job.FileID + ".canonical" }
func textKey(job *Job) string      { return "derived/" + job.FileID + ".txt" }
func markdownKey(job *Job) string  { return "derived/" + job.FileID + ".md" }
func thumbKey(job *Job) string     { return "derived/" + job.FileID + ".jpg" }

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/xml"
}

func pdfText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var b strings.Builder
	for page := 1; page <= doc.NumPage(); page++ {
		pg := doc.Page(page)
		if pg.V.IsNull() {
			continue
		}
		content, err := pg.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// localMarkdown is the no-annotator fallback rendition.
func localMarkdown(name, text string) string {
	var b strings.Builder
	b.WriteString("# ")
	if name == "" {
		name = "Untitled"
	}
	b.WriteString(name)
	b.WriteString("\n")
	text = strings.TrimSpace(text)
	if text != "" {
		if len(text) > 2000 {
			text = text[:2000]
		}
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
