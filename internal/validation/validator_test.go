package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feiju-bot/feiju/internal/validation"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

type syncArgs struct {
	Source  string `json:"source" validate:"contexttoken"`
	Target  string `json:"target" validate:"contexttoken,nefield=Source"`
	Keyword string `json:"keyword" validate:"memename"`
}

type addArgs struct {
	Name     string `json:"name" validate:"memename"`
	ImageURL string `json:"image_url" validate:"required,url"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(syncArgs{Source: "P42", Target: "10086", Keyword: "哆啦A梦"}))
	assert.NoError(t, v.Validate(addArgs{Name: "猫猫", ImageURL: "https://img.example/1.png"}))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       any
		wantField string
	}{
		{"empty keyword", syncArgs{Source: "1", Target: "2", Keyword: "  "}, "keyword"},
		{"long keyword", syncArgs{Source: "1", Target: "2", Keyword: strings.Repeat("喵", validation.MaxNameLength+1)}, "keyword"},
		{"control character", syncArgs{Source: "1", Target: "2", Keyword: "a\x07b"}, "keyword"},
		{"source with spaces", syncArgs{Source: "a b", Target: "2", Keyword: "k"}, "source"},
		{"same source and target", syncArgs{Source: "1", Target: "1", Keyword: "k"}, "target"},
		{"missing url", addArgs{Name: "猫猫"}, "image_url"},
		{"bad url", addArgs{Name: "猫猫", ImageURL: "not a url"}, "image_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

			var domainErr *domainerrors.Error
			require.True(t, domainerrors.As(err, &domainErr))
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(addArgs{Name: "猫猫"})
	require.Error(t, err)

	// Should use JSON tag name "image_url", not struct field name "ImageURL"
	assert.Contains(t, err.Error(), "image_url")
	assert.NotContains(t, err.Error(), "ImageURL")
}
