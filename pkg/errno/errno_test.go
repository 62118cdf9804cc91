package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"nil", nil, OK.Code, OK.Message},
		{"value", ErrTxBusy, ErrTxBusy.Code, ErrTxBusy.Message},
		{"pointer", &ErrUnknownFlow, ErrUnknownFlow.Code, ErrUnknownFlow.Message},
		{"wrapped", fmt.Errorf("supply: %w", ErrValidation.WithMessage("Amount is required")), ErrValidation.Code, "Amount is required"},
		{"plain", errors.New("boom"), InternalServerError.Code, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := Decode(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}
