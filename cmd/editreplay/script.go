package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"geo-editor/internal/app"
	"geo-editor/internal/editor/transform"
	"geo-editor/internal/interaction"
	"geo-editor/internal/maps"
	"geo-editor/pkg/geometry"

	"github.com/BurntSushi/toml"
)

// defaultGap separates events that do not set after_ms; it is longer than
// any sane double-click interval.
const defaultGap = 500 * time.Millisecond

// doubleClickGap separates the two clicks of a dblclick step.
const doubleClickGap = 100 * time.Millisecond

// Script is a recorded editing run.
type Script struct {
	// Session is create, vertices or transform.
	Session string `toml:"session"`
	// Kind is the geometry kind of a create session.
	Kind string `toml:"kind"`
	BBox bool   `toml:"bbox"`
	// Mode is the start mode of a transform session.
	Mode string `toml:"mode"`

	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`

	// Input is an optional GeoJSON file loaded before replaying.
	Input  string `toml:"input"`
	Output string `toml:"output"`
	WGS84  bool   `toml:"wgs84"`

	// Oblique optionally adds a georeferenced oblique image map.
	Oblique *ObliqueImage `toml:"oblique"`

	Steps []Step `toml:"steps"`
}

// ObliqueImage describes an oblique map. The image size is read from Image
// when it is set.
type ObliqueImage struct {
	Name          string         `toml:"name"`
	Image         string         `toml:"image"`
	ImageWidth    int            `toml:"image_width"`
	ImageHeight   int            `toml:"image_height"`
	ControlPoints []ControlPoint `toml:"control_points"`
}

// ControlPoint ties an image pixel to a ground position.
type ControlPoint struct {
	Image [2]float64 `toml:"image"`
	World [2]float64 `toml:"world"`
}

// Step is one scripted input. Positions are native coordinates of the map
// active when the step runs: mercator for planar and globe maps, image
// pixels for oblique maps.
type Step struct {
	// Type is click, dblclick, drag, down, move, up, key, map, mode or stop.
	Type     string  `toml:"type"`
	X        float64 `toml:"x"`
	Y        float64 `toml:"y"`
	ToX      float64 `toml:"to_x"`
	ToY      float64 `toml:"to_y"`
	Button   string  `toml:"button"`
	Modifier string  `toml:"modifier"`
	// Name is the map of a map step or the mode of a mode step.
	Name    string `toml:"name"`
	AfterMS int    `toml:"after_ms"`
}

// LoadScript reads a TOML script and fills in defaults.
func LoadScript(path string) (*Script, error) {
	var s Script
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	s.defaults()
	return &s, nil
}

// ParseScript decodes a TOML script from data.
func ParseScript(data string) (*Script, error) {
	var s Script
	if _, err := toml.Decode(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	s.defaults()
	return &s, nil
}

func (s *Script) defaults() {
	if s.Width <= 0 {
		s.Width = 800
	}
	if s.Height <= 0 {
		s.Height = 600
	}
	if s.Session == "" {
		s.Session = "create"
	}
}

func parseButton(s string) (interaction.PointerKey, error) {
	switch s {
	case "", "left":
		return interaction.PointerLeft, nil
	case "right":
		return interaction.PointerRight, nil
	case "middle":
		return interaction.PointerMiddle, nil
	}
	return 0, fmt.Errorf("unknown button %q", s)
}

func parseModifier(s string) (interaction.ModificationKey, error) {
	switch s {
	case "", "none":
		return interaction.ModNone, nil
	case "alt":
		return interaction.ModAlt, nil
	case "ctrl":
		return interaction.ModCtrl, nil
	case "shift":
		return interaction.ModShift, nil
	}
	return 0, fmt.Errorf("unknown modifier %q", s)
}

// AddOblique adds the oblique map of s to state, if any.
func (s *Script) AddOblique(state *app.State) error {
	oi := s.Oblique
	if oi == nil {
		return nil
	}
	name := oi.Name
	if name == "" {
		name = "oblique"
	}
	o := maps.NewOblique(name, oi.ImageWidth, oi.ImageHeight, geometry.Identity(), s.Width, s.Height)
	if oi.Image != "" {
		if err := o.LoadImage(oi.Image); err != nil {
			return err
		}
	}
	if len(oi.ControlPoints) > 0 {
		points := make([]maps.ControlPoint, len(oi.ControlPoints))
		for i, cp := range oi.ControlPoints {
			points[i] = maps.ControlPoint{
				Image: geometry.C(cp.Image[0], cp.Image[1]),
				World: geometry.C(cp.World[0], cp.World[1]),
			}
		}
		residual, err := o.Georeference(points)
		if err != nil {
			return err
		}
		log.Printf("editreplay: georeferenced %s, mean residual %.3f", name, residual)
	}
	state.Maps.Add(o)
	return nil
}

// StartSession starts the scripted session on state.
func (s *Script) StartSession(state *app.State) error {
	switch s.Session {
	case "create":
		kind, err := geometry.ParseKind(s.Kind)
		if err != nil {
			return err
		}
		_, err = state.StartCreate(kind, s.BBox)
		return err
	case "vertices":
		_, err := state.StartEditGeometry()
		return err
	case "transform":
		mode := transform.ModeTranslate
		if s.Mode != "" {
			m, err := transform.ParseMode(s.Mode)
			if err != nil {
				return err
			}
			mode = m
		}
		_, err := state.StartEditFeatures(mode)
		return err
	}
	return fmt.Errorf("unknown session %q", s.Session)
}

// player feeds steps into a handler on a virtual clock.
type player struct {
	state *app.State
	now   time.Time
}

func (p *player) pixel(x, y float64) maps.Pixel {
	return p.state.Maps.Active().WorldToScreen(geometry.C(x, y))
}

func (p *player) press(ctx context.Context, px maps.Pixel, button interaction.PointerKey, key interaction.ModificationKey) error {
	p.state.Handler.PointerDown(px, button, key)
	return p.state.Handler.PointerUp(ctx, px, p.now)
}

// Replay runs the steps of s against state in order. The first failing
// step aborts the replay.
func (s *Script) Replay(ctx context.Context, state *app.State) error {
	p := &player{state: state, now: time.Unix(0, 0)}
	for i, step := range s.Steps {
		if err := p.step(ctx, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Type, err)
		}
	}
	log.Printf("editreplay: replayed %d steps", len(s.Steps))
	return nil
}

func (p *player) step(ctx context.Context, step Step) error {
	gap := defaultGap
	if step.AfterMS > 0 {
		gap = time.Duration(step.AfterMS) * time.Millisecond
	}
	p.now = p.now.Add(gap)

	button, err := parseButton(step.Button)
	if err != nil {
		return err
	}
	key, err := parseModifier(step.Modifier)
	if err != nil {
		return err
	}
	h := p.state.Handler
	h.SetModifier(key)

	switch step.Type {
	case "click":
		return p.press(ctx, p.pixel(step.X, step.Y), button, key)
	case "dblclick":
		px := p.pixel(step.X, step.Y)
		if err := p.press(ctx, px, button, key); err != nil {
			return err
		}
		p.now = p.now.Add(doubleClickGap)
		return p.press(ctx, px, button, key)
	case "drag":
		h.PointerDown(p.pixel(step.X, step.Y), button, key)
		to := p.pixel(step.ToX, step.ToY)
		if err := h.PointerMove(ctx, to); err != nil {
			return err
		}
		return h.PointerUp(ctx, to, p.now)
	case "down":
		h.PointerDown(p.pixel(step.X, step.Y), button, key)
		return nil
	case "move":
		return h.PointerMove(ctx, p.pixel(step.X, step.Y))
	case "up":
		return h.PointerUp(ctx, p.pixel(step.X, step.Y), p.now)
	case "key":
		return nil
	case "map":
		return p.state.ActivateMap(step.Name)
	case "mode":
		mode, err := transform.ParseMode(step.Name)
		if err != nil {
			return err
		}
		return p.state.SetTransformMode(mode)
	case "stop":
		p.state.StopSession()
		return nil
	}
	return fmt.Errorf("unknown step type %q", step.Type)
}
