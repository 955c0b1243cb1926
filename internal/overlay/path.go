package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrUnknownField = errors.New("unknown field")

// IsLiveImmediate reports whether edits to path skip draft staging.
// Every match-control field lives under game.
func IsLiveImmediate(path string) bool {
	return path == "game" || strings.HasPrefix(path, "game.")
}

// SetPath returns a copy of doc with the dotted path (e.g. "blue.picks.2")
// set to raw. raw is read as JSON when it parses, otherwise as a plain string.
// The path must already exist in the encoded document.
func SetPath(doc AppState, path, raw string) (AppState, error) {
	body, err := doc.Encode()
	if err != nil {
		return doc, err
	}
	if err := checkPath(body, path); err != nil {
		return doc, err
	}

	isJSON := gjson.Valid(raw)
	var next []byte
	if isJSON {
		next, err = sjson.SetRawBytes(body, path, []byte(raw))
	} else {
		next, err = sjson.SetBytes(body, path, raw)
	}
	if err != nil {
		return doc, fmt.Errorf("set %s: %w", path, err)
	}

	out, err := decodeEdited(next)
	if err == nil {
		return out, nil
	}
	// A JSON literal that does not fit the field may still be meant as
	// text, e.g. a team named "123".
	var typeErr *json.UnmarshalTypeError
	if isJSON && !strings.HasPrefix(strings.TrimSpace(raw), `"`) && errors.As(err, &typeErr) {
		if next, serr := sjson.SetBytes(body, path, raw); serr == nil {
			if out, serr := decodeEdited(next); serr == nil {
				return out, nil
			}
		}
	}
	return doc, err
}

// checkPath rejects empty paths, gjson query syntax and paths missing from body.
func checkPath(body []byte, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrUnknownField)
	}
	if strings.ContainsAny(path, "*?#|@\\!=<>%") {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	if !gjson.GetBytes(body, path).Exists() {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	return nil
}

func decodeEdited(body []byte) (AppState, error) {
	var s AppState
	err := json.Unmarshal(body, &s)
	return s, err
}

// Upload slot discriminators accepted by SetUpload.
const (
	UploadTeamLogo      = "logo"
	UploadAssetLogo     = "asset_logo"
	UploadAssetUnion1   = "asset_union1"
	UploadAssetUnion2   = "asset_union2"
	UploadAssetGradient = "asset_gradient"
)

// SetUpload points the slot named by field (and team, for team logos) at ref.
// It reports false and leaves s untouched when the slot is unknown.
func (s *AppState) SetUpload(field, team, ref string) bool {
	switch field {
	case UploadTeamLogo:
		side, ok := ParseSide(team)
		if !ok {
			return false
		}
		s.Team(side).Logo = ref
	case UploadAssetLogo:
		s.Assets.Logo = ref
	case UploadAssetUnion1:
		s.Assets.Union1 = ref
	case UploadAssetUnion2:
		s.Assets.Union2 = ref
	case UploadAssetGradient:
		s.Assets.Gradient = ref
	default:
		return false
	}
	return true
}
