package overlay

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
)

var ErrNotDocument = errors.New("payload is not a JSON object")

type Side string

const (
	SideBlue Side = "blue"
	SideRed  Side = "red"
)

// Known phase values. The document itself accepts any string.
const (
	PhaseBanning   = "BANNING"
	PhasePicking   = "PICKING"
	PhasePreparing = "PREPARING"
	PhaseStarting  = "STARTING"
)

const (
	AdTypeImages = "images"
	AdTypeText   = "text"

	AdEffectScroll = "scroll"
	AdEffectFade   = "fade"
)

// RosterSize is the number of picks, players and bans per team.
const RosterSize = 5

type TeamData struct {
	Name   string             `json:"name"`
	Logo   string             `json:"logo"`
	Picks  [RosterSize]string `json:"picks"`
	PNames [RosterSize]string `json:"pNames"`
	PRoles [RosterSize]int    `json:"pRoles"`
	Bans   [RosterSize]string `json:"bans"`
	Score  int                `json:"score"`
}

type Visibility struct {
	Phase bool `json:"phase"`
	Timer bool `json:"timer"`
	Turn  bool `json:"turn"`
	Score bool `json:"score"`
}

type GameState struct {
	Phase                string     `json:"phase"`
	Timer                int        `json:"timer"`
	Turn                 string     `json:"turn"`
	IsIntroActive        bool       `json:"isIntroActive"`
	IsGameControlEnabled bool       `json:"isGameControlEnabled"`
	BestOf               int        `json:"bestOf"`
	Visibility           Visibility `json:"visibility"`
	IsBracketActive      bool       `json:"isBracketActive"`
}

type AdConfig struct {
	Type   string  `json:"type"`
	Effect string  `json:"effect"`
	Text   string  `json:"text"`
	Speed  float64 `json:"speed"`
}

// Assets override the built-in decorative graphics. Empty means default.
type Assets struct {
	Union1   string `json:"union1"`
	Union2   string `json:"union2"`
	Logo     string `json:"logo"`
	Gradient string `json:"gradient"`
}

type RegisteredTeam struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Leader string `json:"leader"`
	Logo   string `json:"logo"`
}

type BracketMatch struct {
	ID     string `json:"id"`
	Team1  string `json:"team1"`
	Team2  string `json:"team2"`
	Score1 int    `json:"score1"`
	Score2 int    `json:"score2"`
	Winner string `json:"winner"` // "team1" | "team2" | ""
}

type Bracket struct {
	Semis    [2]BracketMatch `json:"semis"`
	Final    BracketMatch    `json:"final"`
	Champion string          `json:"champion"`
}

// AppState is the whole broadcast document. It travels as-is on the wire.
type AppState struct {
	Blue     TeamData         `json:"blue"`
	Red      TeamData         `json:"red"`
	Game     GameState        `json:"game"`
	Ads      []string         `json:"ads"`
	AdConfig AdConfig         `json:"adConfig"`
	Assets   Assets           `json:"assets"`
	Registry []RegisteredTeam `json:"registry"`
	Bracket  Bracket          `json:"bracket"`
}

func Default() AppState {
	return AppState{
		Blue: defaultTeam("BLUE TEAM"),
		Red:  defaultTeam("RED TEAM"),
		Game: GameState{
			Phase:                PhaseBanning,
			Timer:                30,
			Turn:                 string(SideBlue),
			IsGameControlEnabled: true,
			BestOf:               3,
			Visibility:           Visibility{Phase: true, Timer: true, Turn: true, Score: true},
		},
		Ads: []string{"AD 1", "AD 2", "AD 3"},
		AdConfig: AdConfig{
			Type:   AdTypeImages,
			Effect: AdEffectScroll,
			Text:   "WELCOME TO THE TOURNAMENT! ENJOY THE MATCH!",
			Speed:  25,
		},
		Registry: []RegisteredTeam{},
		Bracket: Bracket{
			Semis: [2]BracketMatch{
				{ID: "semi1", Team1: "TBD", Team2: "TBD"},
				{ID: "semi2", Team1: "TBD", Team2: "TBD"},
			},
			Final: BracketMatch{ID: "final", Team1: "TBD", Team2: "TBD"},
		},
	}
}

func defaultTeam(name string) TeamData {
	t := TeamData{Name: name}
	for i := range RosterSize {
		t.PNames[i] = "PLAYER " + strconv.Itoa(i+1)
	}
	return t
}

// Clone returns a copy that shares no slices with s.
func (s AppState) Clone() AppState {
	c := s
	c.Ads = slices.Clone(s.Ads)
	c.Registry = slices.Clone(s.Registry)
	return c
}

// Decode parses a full wire document. Fields missing from data are left zero:
// a document replaces, it never patches.
func Decode(data []byte) (AppState, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return AppState{}, ErrNotDocument
	}
	var s AppState
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return AppState{}, err
	}
	return s, nil
}

func (s AppState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// KnownPhase reports whether p is one of the four phases the renderer has artwork for.
func KnownPhase(p string) bool {
	switch p {
	case PhaseBanning, PhasePicking, PhasePreparing, PhaseStarting:
		return true
	}
	return false
}

func ParseSide(v string) (Side, bool) {
	switch Side(v) {
	case SideBlue:
		return SideBlue, true
	case SideRed:
		return SideRed, true
	default:
		return "", false
	}
}

// Team returns a pointer to the team on the given side.
func (s *AppState) Team(side Side) *TeamData {
	if side == SideRed {
		return &s.Red
	}
	return &s.Blue
}
