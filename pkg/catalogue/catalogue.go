// Package catalogue holds the authoritative description of a transit network:
// stops, lines and the road distances between stops.
//
// Stops and lines live in append-only slices and refer to each other by
// integer id. A Builder collects the network during loading; Build freezes it
// into a Catalogue that is never mutated again.
package catalogue

import (
	"errors"
	"fmt"
	"sort"

	"transit_router/pkg/geo"
)

var (
	ErrDuplicateStop = errors.New("duplicate stop")
	ErrDuplicateLine = errors.New("duplicate line")
	ErrUnknownStop   = errors.New("unknown stop")
	ErrEmptyName     = errors.New("empty name")
	ErrBadDistance   = errors.New("distance must be non-negative")
)

// StopID is the position of a stop in declaration order.
type StopID int

// LineID is the position of a line in declaration order.
type LineID int

// Stop is a named point of the network.
type Stop struct {
	Name        string
	Coordinates geo.Coordinates
}

// Line is an ordered sequence of stops served by one bus line.
// A line that is not a round trip is travelled forward and then back.
type Line struct {
	Name        string
	Stops       []StopID
	IsRoundtrip bool
}

// Distance is a recorded directed road distance in meters.
type Distance struct {
	From   StopID
	To     StopID
	Meters int
}

type stopPair struct {
	from, to StopID
}

// Builder accumulates a network during the load phase.
type Builder struct {
	stops      []Stop
	lines      []Line
	distances  []Distance
	stopByName map[string]StopID
	lineByName map[string]LineID
	distIndex  map[stopPair]int // index into distances
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		stopByName: make(map[string]StopID),
		lineByName: make(map[string]LineID),
		distIndex:  make(map[stopPair]int),
	}
}

// AddStop registers a stop. Names are unique.
func (b *Builder) AddStop(name string, c geo.Coordinates) (StopID, error) {
	if name == "" {
		return 0, fmt.Errorf("add stop: %w", ErrEmptyName)
	}
	if _, ok := b.stopByName[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateStop, name)
	}
	id := StopID(len(b.stops))
	b.stops = append(b.stops, Stop{Name: name, Coordinates: c})
	b.stopByName[name] = id
	return id, nil
}

// HasStop reports whether a stop with the given name was added.
func (b *Builder) HasStop(name string) bool {
	_, ok := b.stopByName[name]
	return ok
}

// SetDistance records the directed road distance from one stop to another.
// Setting the same pair twice keeps the original position and overwrites the value.
func (b *Builder) SetDistance(from, to string, meters int) error {
	if meters < 0 {
		return fmt.Errorf("%w: %s -> %s = %d", ErrBadDistance, from, to, meters)
	}
	f, ok := b.stopByName[from]
	if !ok {
		return fmt.Errorf("set distance: %w: %q", ErrUnknownStop, from)
	}
	t, ok := b.stopByName[to]
	if !ok {
		return fmt.Errorf("set distance: %w: %q", ErrUnknownStop, to)
	}
	key := stopPair{f, t}
	if i, ok := b.distIndex[key]; ok {
		b.distances[i].Meters = meters
		return nil
	}
	b.distIndex[key] = len(b.distances)
	b.distances = append(b.distances, Distance{From: f, To: t, Meters: meters})
	return nil
}

// AddLine registers a line over previously added stops.
func (b *Builder) AddLine(name string, stops []string, isRoundtrip bool) (LineID, error) {
	if name == "" {
		return 0, fmt.Errorf("add line: %w", ErrEmptyName)
	}
	if _, ok := b.lineByName[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateLine, name)
	}
	ids := make([]StopID, len(stops))
	for i, s := range stops {
		id, ok := b.stopByName[s]
		if !ok {
			return 0, fmt.Errorf("line %q: %w: %q", name, ErrUnknownStop, s)
		}
		ids[i] = id
	}
	id := LineID(len(b.lines))
	b.lines = append(b.lines, Line{Name: name, Stops: ids, IsRoundtrip: isRoundtrip})
	b.lineByName[name] = id
	return id, nil
}

// Build freezes the builder into a Catalogue. The builder must not be used afterwards.
func (b *Builder) Build() *Catalogue {
	c := &Catalogue{
		stops:      b.stops,
		lines:      b.lines,
		distances:  b.distances,
		stopByName: b.stopByName,
		lineByName: b.lineByName,
		distIndex:  make(map[stopPair]int, len(b.distIndex)),
		stopLines:  make([][]LineID, len(b.stops)),
	}
	for k, v := range b.distIndex {
		c.distIndex[k] = b.distances[v].Meters
	}
	for lid, l := range c.lines {
		for _, s := range l.Stops {
			if !containsLine(c.stopLines[s], LineID(lid)) {
				c.stopLines[s] = append(c.stopLines[s], LineID(lid))
			}
		}
	}
	c.index = NewStopIndex(c.stops)
	*b = Builder{}
	return c
}

func containsLine(ls []LineID, id LineID) bool {
	for _, l := range ls {
		if l == id {
			return true
		}
	}
	return false
}

// Catalogue is the frozen network description. It is safe for concurrent reads.
type Catalogue struct {
	stops      []Stop
	lines      []Line
	distances  []Distance
	stopByName map[string]StopID
	lineByName map[string]LineID
	distIndex  map[stopPair]int // meters
	stopLines  [][]LineID
	index      *StopIndex
}

// Stops returns all stops in declaration order. Callers must not modify the slice.
func (c *Catalogue) Stops() []Stop { return c.stops }

// Lines returns all lines in declaration order. Callers must not modify the slice.
func (c *Catalogue) Lines() []Line { return c.lines }

// Distances returns recorded distances in insertion order.
func (c *Catalogue) Distances() []Distance { return c.distances }

// Stop returns the stop with the given id.
func (c *Catalogue) Stop(id StopID) Stop { return c.stops[id] }

// Line returns the line with the given id.
func (c *Catalogue) Line(id LineID) Line { return c.lines[id] }

// StopByName resolves a stop name.
func (c *Catalogue) StopByName(name string) (StopID, bool) {
	id, ok := c.stopByName[name]
	return id, ok
}

// LineByName resolves a line name.
func (c *Catalogue) LineByName(name string) (LineID, bool) {
	id, ok := c.lineByName[name]
	return id, ok
}

// Distance returns the road distance from one stop to another. When only the
// reverse direction was recorded, that value is used.
func (c *Catalogue) Distance(from, to StopID) (int, bool) {
	if d, ok := c.distIndex[stopPair{from, to}]; ok {
		return d, true
	}
	d, ok := c.distIndex[stopPair{to, from}]
	return d, ok
}

// LinesThrough returns the ids of lines that serve the stop, in declaration order.
func (c *Catalogue) LinesThrough(id StopID) []LineID { return c.stopLines[id] }

// SortedLines returns all line ids ordered by line name.
func (c *Catalogue) SortedLines() []LineID {
	ids := make([]LineID, len(c.lines))
	for i := range ids {
		ids[i] = LineID(i)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.lines[ids[i]].Name < c.lines[ids[j]].Name
	})
	return ids
}

// ServedStops returns the ids of stops served by at least one line, ordered by name.
func (c *Catalogue) ServedStops() []StopID {
	var ids []StopID
	for i := range c.stops {
		if len(c.stopLines[i]) > 0 {
			ids = append(ids, StopID(i))
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.stops[ids[i]].Name < c.stops[ids[j]].Name
	})
	return ids
}

// NearestStop returns the stop closest to p within maxMeters.
func (c *Catalogue) NearestStop(p geo.Coordinates, maxMeters float64) (StopID, float64, bool) {
	return c.index.Nearest(p, maxMeters)
}
