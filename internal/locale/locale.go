// Package locale holds the fixed set of locales the voice guide understands.
//
// A [Locale] bundles the speech tags for recognition and synthesis with the
// user-visible strings for that language. The [Registry] is immutable once
// built and safe for concurrent use.
package locale

import (
	"errors"
	"fmt"
)

// ErrUnknownLocale is returned by [Registry.Resolve] for a code outside the
// registered set.
var ErrUnknownLocale = errors.New("locale: unknown locale")

// Code identifies a locale (e.g., "en", "hi").
type Code string

const (
	English Code = "en"
	Hindi   Code = "hi"
)

// Strings is the bundle of user-visible text for one locale.
type Strings struct {
	// Welcome is shown while the transcript is empty.
	Welcome string

	// Error is the generic backend failure message.
	Error string

	// QuotaError is shown when the backend rejects the request for quota.
	QuotaError string

	// PermissionDenied is shown when microphone access is refused.
	PermissionDenied string

	// CaptureFailed is shown for any other capture failure.
	CaptureFailed string

	// PlaybackFailed is shown when the reply cannot be spoken.
	PlaybackFailed string

	// Unsupported is the persistent notice shown when no capture engine is
	// available.
	Unsupported string
}

// Locale is one immutable locale definition.
type Locale struct {
	Code Code

	// RecognitionTag is the BCP-47 tag handed to the speech recogniser.
	RecognitionTag string

	// SynthesisTag is the BCP-47 tag used to pick a playback voice.
	SynthesisTag string

	// Label is the display name of the locale a toggle switches to.
	Label string

	// Language is the language name used inside backend instructions.
	Language string

	Strings Strings
}

// Registry is an ordered, immutable set of locales.
type Registry struct {
	order  []Code
	byCode map[Code]Locale
}

// NewRegistry builds a registry from locales in toggle order. It fails on an
// empty list, an empty code or a duplicate code.
func NewRegistry(locales ...Locale) (*Registry, error) {
	if len(locales) == 0 {
		return nil, errors.New("locale: registry needs at least one locale")
	}
	r := &Registry{byCode: make(map[Code]Locale, len(locales))}
	for _, l := range locales {
		if l.Code == "" {
			return nil, errors.New("locale: empty locale code")
		}
		if _, dup := r.byCode[l.Code]; dup {
			return nil, fmt.Errorf("locale: duplicate locale %q", l.Code)
		}
		r.byCode[l.Code] = l
		r.order = append(r.order, l.Code)
	}
	return r, nil
}

// Default returns the built-in English/Hindi registry.
func Default() *Registry {
	r, err := NewRegistry(englishLocale, hindiLocale)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the locale registered under code.
func (r *Registry) Resolve(code Code) (Locale, error) {
	l, ok := r.byCode[code]
	if !ok {
		return Locale{}, fmt.Errorf("%w: %q", ErrUnknownLocale, code)
	}
	return l, nil
}

// Next returns the locale a toggle moves to from code, wrapping around the
// registration order. An unknown code yields ErrUnknownLocale.
func (r *Registry) Next(code Code) (Locale, error) {
	for i, c := range r.order {
		if c == code {
			return r.byCode[r.order[(i+1)%len(r.order)]], nil
		}
	}
	return Locale{}, fmt.Errorf("%w: %q", ErrUnknownLocale, code)
}

// Default returns the first registered locale.
func (r *Registry) Default() Locale {
	return r.byCode[r.order[0]]
}

// Codes returns the registered codes in toggle order.
func (r *Registry) Codes() []Code {
	out := make([]Code, len(r.order))
	copy(out, r.order)
	return out
}
