//go:build !govips || !cgo

package codec

import (
	"errors"
	"testing"

	"github.com/easelhq/easel/internal/domain"
)

func TestEncode_AVIFRequiresGovipsBuild(t *testing.T) {
	_, err := Encode(buildTestBuffer(8, 8), domain.FormatAVIF, 0.8)
	if !errors.Is(err, ErrEncoderUnavailable) {
		t.Fatalf("expected ErrEncoderUnavailable, got %v", err)
	}
}
