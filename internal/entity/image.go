package entity

import (
	"bytes"
	"context"
	"net/http"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/names"
	"github.com/sells-group/doc-intake/pkg/anthropic"
)

const visionSystemPrompt = `You identify the client-related names visible in images: company names, business entities and organizations. Ignore unrelated text. Treat variants such as "ABC Corp." and "ABC Corporation" as one name.

Answer with a single list literal of quoted strings and nothing else, for example:
["Microsoft", "Amazon"]
Answer [] if there are none.`

const visionPrompt = "List the client names visible in this image."

// Every image of a document is sent with the same system prompt.
const visionCacheTTL = "5m"

// Media types the vision endpoint accepts as-is.
var visionMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// errSkipImage marks an image in a format that can be neither sent nor
// converted (EMF and WMF drawings in DOCX files, for instance).
var errSkipImage = eris.New("entity: unsupported image format")

// FromImage sends one image to the vision model and returns its raw answer.
func (e *Extractor) FromImage(ctx context.Context, img []byte) (string, model.TokenUsage, error) {
	data, mediaType, err := prepareImage(img, e.cfg.MaxImageEdge)
	if err != nil {
		return "", model.TokenUsage{}, err
	}

	resp, usage, err := e.call(ctx, "image entities", anthropic.MessageRequest{
		Model:     e.cfg.VisionModel,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(visionSystemPrompt, visionCacheTTL),
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: visionPrompt,
			Images:  []anthropic.Image{{MediaType: mediaType, Data: data}},
		}},
	})
	if err != nil {
		return "", usage, err
	}
	return resp.Text(), usage, nil
}

// FromImages runs FromImage over every image with bounded concurrency and
// returns the normalized union of the answers. The first failed call
// cancels the rest and is returned. No images means no calls.
func (e *Extractor) FromImages(ctx context.Context, images [][]byte) ([]string, model.TokenUsage, error) {
	var total model.TokenUsage
	if len(images) == 0 {
		return []string{}, total, nil
	}

	perImage := make([][]string, len(images))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.VisionConcurrency)
	for i, img := range images {
		g.Go(func() error {
			raw, usage, err := e.FromImage(gctx, img)
			mu.Lock()
			total.Add(usage)
			mu.Unlock()

			if eris.Is(err, errSkipImage) {
				zap.L().Warn("entity: skipping image", zap.Int("image", i), zap.Error(err))
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "entity: image %d", i+1)
			}
			perImage[i] = names.Normalize(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, total, err
	}

	return names.Union(perImage...), total, nil
}

// prepareImage returns image bytes and a media type the vision endpoint
// accepts, downscaling so neither edge exceeds maxEdge.
func prepareImage(data []byte, maxEdge int) ([]byte, string, error) {
	mediaType := http.DetectContentType(data)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if visionMediaTypes[mediaType] {
			// Accepted upstream even though we cannot decode it locally.
			return data, mediaType, nil
		}
		return nil, "", eris.Wrapf(errSkipImage, "%s: %v", mediaType, err)
	}

	b := img.Bounds()
	if visionMediaTypes[mediaType] && b.Dx() <= maxEdge && b.Dy() <= maxEdge {
		return data, mediaType, nil
	}

	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, "", eris.Wrap(err, "entity: encode png")
	}
	return buf.Bytes(), "image/png", nil
}
