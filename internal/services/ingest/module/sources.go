package module

import (
	"os"
	"reflect"
	"strings"
	"sync"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/services/ingest/domain"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"gopkg.in/yaml.v3"
)

// sourcesFile is the on-disk sources config shape
type sourcesFile struct {
	Sources []domain.Source `yaml:"sources" validate:"required,min=1,dive"`
}

var (
	vOnce sync.Once
	vld   *validator.Validate
	trans ut.Translator
)

// sourcesValidator returns a singleton validator with yaml tag names and
// english messages
func sourcesValidator() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ = uni.GetTranslator("en")

		vld = validator.New(validator.WithRequiredStructEnabled())

		// prefer yaml tag names in messages
		vld.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(vld, trans)
	})
	return vld, trans
}

// LoadSources reads, parses, and validates the sources config.
// Duplicate ids are rejected; visibility defaults to public
func LoadSources(path string) ([]domain.Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, perr.InvalidArgf("sources: file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "sources: read %s", path)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "sources: parse %s", path)
	}

	v, tr := sourcesValidator()
	if err := v.Struct(f); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return nil, perr.Validationf("sources: %s", verrs[0].Translate(tr))
		}
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "sources: invalid config")
	}

	seen := make(map[string]struct{}, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		if _, dup := seen[s.ID]; dup {
			return nil, perr.Validationf("sources: duplicate id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Visibility == "" {
			s.Visibility = domain.VisibilityPublic
		}
	}
	return f.Sources, nil
}
