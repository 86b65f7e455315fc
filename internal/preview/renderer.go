package preview

import (
	"context"

	"github.com/easelhq/easel/internal/codec"
	"github.com/easelhq/easel/internal/compose"
	"github.com/easelhq/easel/internal/domain"
)

// SourceRenderer builds the standard render pipeline over one decoded
// source: composite under the options, then encode. The source is read
// concurrently by overlapping renders and must stay immutable.
func SourceRenderer(src *compose.Source) RenderFunc {
	return func(ctx context.Context, opts domain.EditOptions) (*Render, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := compose.Composite(src, opts)
		if err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := codec.Encode(img, opts.Format, opts.Quality)
		if err != nil {
			return nil, err
		}

		bounds := img.Bounds()
		return &Render{
			Data:   data,
			Format: opts.Format,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		}, nil
	}
}
