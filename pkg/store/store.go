// Package store persists a built transit router to a single binary file and
// loads it back without recompiling the graph or re-running any search.
//
// File layout: 8-byte magic, uint32 version, then sections in fixed order,
// each {uint32 tag, uint64 payload length, payload}, then a CRC32 (IEEE) of
// everything before it. All integers are little-endian.
package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/geo"
	"transit_router/pkg/graph"
	"transit_router/pkg/render"
	"transit_router/pkg/routing"
	"transit_router/pkg/transit"
)

// ErrFormat is returned for files that are not a valid store.
var ErrFormat = errors.New("invalid store file")

const (
	magicBytes = "TRNSTORE"
	version    = uint32(1)

	maxSection  = 1 << 36
	maxVertices = 10_000_000
)

const (
	tagStops uint32 = iota + 1
	tagLines
	tagDistances
	tagRouting
	tagRender
	tagEdges
	tagIncidence
	tagVertices
	tagRouter
)

var sectionOrder = []uint32{
	tagStops, tagLines, tagDistances, tagRouting, tagRender,
	tagEdges, tagIncidence, tagVertices, tagRouter,
}

// fileHeader is the binary header.
type fileHeader struct {
	Magic   [8]byte
	Version uint32
}

// Snapshot is everything a serve run needs.
type Snapshot struct {
	Router *transit.Router
	Render *render.Settings // nil when the build had no render settings
}

// Write serializes the snapshot, including every shortest-path row computed
// so far. The file is written next to path and renamed into place.
func Write(path string, snap Snapshot) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	bw := bufio.NewWriter(f)
	crcWriter := crc32Writer{w: bw, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := fileHeader{Version: version}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	r := snap.Router
	for _, tag := range sectionOrder {
		var e encoder
		switch tag {
		case tagStops:
			encodeStops(&e, r.Catalogue())
		case tagLines:
			encodeLines(&e, r.Catalogue())
		case tagDistances:
			encodeDistances(&e, r.Catalogue())
		case tagRouting:
			e.f64(r.Settings().WaitTime)
			e.f64(r.Settings().Velocity)
		case tagRender:
			encodeRender(&e, snap.Render)
		case tagEdges:
			encodeEdges(&e, r.Network())
		case tagIncidence:
			encodeIncidence(&e, r.Network().Graph)
		case tagVertices:
			encodeVertices(&e, r.Network())
		case tagRouter:
			encodeRows(&e, r.Engine().Rows())
		}
		if err := writeSection(w, tag, e.b); err != nil {
			return fmt.Errorf("write section %d: %w", tag, err)
		}
	}

	// Write CRC32 trailer.
	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(bw, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func writeSection(w io.Writer, tag uint32, payload []byte) error {
	if err := binary.Write(w, binary.LittleEndian, tag); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Read loads a snapshot written by Write.
func Read(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	crcReader := crc32Reader{r: br, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return Snapshot{}, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return Snapshot{}, fmt.Errorf("%w: magic bytes %q", ErrFormat, hdr.Magic)
	}
	if hdr.Version != version {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, hdr.Version)
	}

	payloads := make(map[uint32][]byte, len(sectionOrder))
	for _, want := range sectionOrder {
		var tag uint32
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			return Snapshot{}, fmt.Errorf("read section tag: %w", err)
		}
		if tag != want {
			return Snapshot{}, fmt.Errorf("%w: section %d where %d expected", ErrFormat, tag, want)
		}
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Snapshot{}, fmt.Errorf("read section %d length: %w", tag, err)
		}
		if n > maxSection {
			return Snapshot{}, fmt.Errorf("%w: section %d length %d exceeds limit", ErrFormat, tag, n)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Snapshot{}, fmt.Errorf("read section %d: %w", tag, err)
		}
		payloads[tag] = buf
	}

	// Read and validate CRC32.
	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(br, binary.LittleEndian, &storedCRC); err != nil {
		return Snapshot{}, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return Snapshot{}, fmt.Errorf("%w: CRC32 mismatch: stored=%08x computed=%08x", ErrFormat, storedCRC, expectedCRC)
	}

	return decode(payloads)
}

func decode(p map[uint32][]byte) (Snapshot, error) {
	cat, err := decodeCatalogue(p[tagStops], p[tagLines], p[tagDistances])
	if err != nil {
		return Snapshot{}, err
	}

	d := &decoder{b: p[tagRouting]}
	settings := transit.Settings{WaitTime: d.f64(), Velocity: d.f64()}
	if err := d.done(); err != nil {
		return Snapshot{}, fmt.Errorf("routing settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	rs, err := decodeRender(p[tagRender])
	if err != nil {
		return Snapshot{}, fmt.Errorf("render settings: %w", err)
	}

	net, err := decodeNetwork(cat, p[tagEdges], p[tagIncidence], p[tagVertices])
	if err != nil {
		return Snapshot{}, err
	}

	rows, err := decodeRows(p[tagRouter], net.Graph)
	if err != nil {
		return Snapshot{}, fmt.Errorf("router table: %w", err)
	}
	engine, err := routing.FromRows(net.Graph, rows)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	router, err := transit.Restore(cat, settings, net, engine)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return Snapshot{Router: router, Render: rs}, nil
}

func encodeStops(e *encoder, cat *catalogue.Catalogue) {
	stops := cat.Stops()
	e.count(len(stops))
	for _, s := range stops {
		e.str(s.Name)
		e.f64(s.Coordinates.Lat)
		e.f64(s.Coordinates.Lng)
	}
}

func encodeLines(e *encoder, cat *catalogue.Catalogue) {
	lines := cat.Lines()
	e.count(len(lines))
	for _, l := range lines {
		e.str(l.Name)
		e.flag(l.IsRoundtrip)
		e.count(len(l.Stops))
		for _, s := range l.Stops {
			e.u32(uint32(s))
		}
	}
}

func encodeDistances(e *encoder, cat *catalogue.Catalogue) {
	dists := cat.Distances()
	e.count(len(dists))
	for _, d := range dists {
		e.u32(uint32(d.From))
		e.u32(uint32(d.To))
		e.i64(int64(d.Meters))
	}
}

// decodeCatalogue replays the three catalogue sections through a Builder so
// the loaded catalogue enforces the same rules as a freshly built one.
func decodeCatalogue(stopsRaw, linesRaw, distRaw []byte) (*catalogue.Catalogue, error) {
	b := catalogue.NewBuilder()

	d := &decoder{b: stopsRaw}
	names := make([]string, d.count(20))
	for i := range names {
		names[i] = d.str()
		c := geo.Coordinates{Lat: d.f64(), Lng: d.f64()}
		if d.err != nil {
			break
		}
		if _, err := b.AddStop(names[i], c); err != nil {
			return nil, fmt.Errorf("%w: stops: %w", ErrFormat, err)
		}
	}
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("stops: %w", err)
	}

	stopName := func(d *decoder) string {
		id := d.u32()
		if int(id) >= len(names) {
			d.fail("stop id %d of %d", id, len(names))
			return ""
		}
		return names[id]
	}

	d = &decoder{b: distRaw}
	for n := d.count(16); n > 0 && d.err == nil; n-- {
		from, to := stopName(d), stopName(d)
		meters := d.i64()
		if d.err != nil {
			break
		}
		if err := b.SetDistance(from, to, int(meters)); err != nil {
			return nil, fmt.Errorf("%w: distances: %w", ErrFormat, err)
		}
	}
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("distances: %w", err)
	}

	d = &decoder{b: linesRaw}
	for n := d.count(9); n > 0 && d.err == nil; n-- {
		name := d.str()
		roundtrip := d.flag()
		stops := make([]string, d.count(4))
		for i := range stops {
			stops[i] = stopName(d)
		}
		if d.err != nil {
			break
		}
		if _, err := b.AddLine(name, stops, roundtrip); err != nil {
			return nil, fmt.Errorf("%w: lines: %w", ErrFormat, err)
		}
	}
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}

	return b.Build(), nil
}

func encodeRender(e *encoder, s *render.Settings) {
	e.flag(s != nil)
	if s == nil {
		return
	}
	e.f64(s.Width)
	e.f64(s.Height)
	e.f64(s.Padding)
	e.f64(s.LineWidth)
	e.f64(s.StopRadius)
	e.i64(int64(s.BusLabelFontSize))
	e.point(s.BusLabelOffset)
	e.i64(int64(s.StopLabelFontSize))
	e.point(s.StopLabelOffset)
	e.str(string(s.UnderlayerColor))
	e.f64(s.UnderlayerWidth)
	e.count(len(s.ColorPalette))
	for _, c := range s.ColorPalette {
		e.str(string(c))
	}
}

func decodeRender(raw []byte) (*render.Settings, error) {
	d := &decoder{b: raw}
	if !d.flag() {
		return nil, d.done()
	}
	s := &render.Settings{
		Width:             d.f64(),
		Height:            d.f64(),
		Padding:           d.f64(),
		LineWidth:         d.f64(),
		StopRadius:        d.f64(),
		BusLabelFontSize:  int(d.i64()),
		BusLabelOffset:    d.point(),
		StopLabelFontSize: int(d.i64()),
		StopLabelOffset:   d.point(),
		UnderlayerColor:   render.Color(d.str()),
		UnderlayerWidth:   d.f64(),
	}
	if n := d.count(4); n > 0 {
		s.ColorPalette = make([]render.Color, n)
		for i := range s.ColorPalette {
			s.ColorPalette[i] = render.Color(d.str())
		}
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return s, nil
}

func encodeEdges(e *encoder, net *transit.Network) {
	g := net.Graph
	e.count(g.EdgeCount())
	for id := range g.EdgeCount() {
		edge := g.Edge(graph.EdgeID(id))
		e.u32(edge.From)
		e.u32(edge.To)
		e.f64(edge.Weight)
		e.str(net.Edges[id].Line)
		e.u32(uint32(net.Edges[id].SpanCount))
	}
}

func encodeIncidence(e *encoder, g *graph.DirectedWeightedGraph[float64]) {
	e.count(g.VertexCount())
	for v := range g.VertexCount() {
		list := g.IncidentEdges(graph.VertexID(v))
		e.count(len(list))
		for _, id := range list {
			e.u32(id)
		}
	}
}

func encodeVertices(e *encoder, net *transit.Network) {
	e.count(len(net.Vertices))
	for _, v := range net.Vertices {
		e.str(v.StopName)
		e.flag(v.Waiting)
	}
}

func decodeNetwork(cat *catalogue.Catalogue, edgesRaw, incRaw, vertRaw []byte) (*transit.Network, error) {
	d := &decoder{b: edgesRaw}
	edges := make([]graph.Edge[float64], d.count(24))
	infos := make([]transit.EdgeInfo, len(edges))
	for i := range edges {
		edges[i] = graph.Edge[float64]{From: d.u32(), To: d.u32(), Weight: d.f64()}
		infos[i] = transit.EdgeInfo{Line: d.str(), SpanCount: int(d.u32())}
		if d.err != nil {
			break
		}
		if infos[i].Line != "" {
			if _, ok := cat.LineByName(infos[i].Line); !ok {
				d.fail("edge %d references unknown line %q", i, infos[i].Line)
			}
		}
	}
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("edges: %w", err)
	}

	d = &decoder{b: incRaw}
	n := d.count(4)
	if n > maxVertices {
		return nil, fmt.Errorf("%w: %d vertices exceeds limit %d", ErrFormat, n, maxVertices)
	}
	incidence := make([][]graph.EdgeID, n)
	for v := range incidence {
		k := d.count(4)
		if k == 0 {
			continue
		}
		incidence[v] = make([]graph.EdgeID, k)
		for j := range incidence[v] {
			incidence[v][j] = d.u32()
		}
	}
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("incidence: %w", err)
	}

	d = &decoder{b: vertRaw}
	vertices := make([]transit.Vertex, d.count(5))
	for i := range vertices {
		vertices[i] = transit.Vertex{StopName: d.str(), Waiting: d.flag()}
		if d.err != nil {
			break
		}
		if _, ok := cat.StopByName(vertices[i].StopName); !ok {
			d.fail("vertex %d references unknown stop %q", i, vertices[i].StopName)
		}
	}
	if err := d.done(); err != nil {
		return nil, fmt.Errorf("vertices: %w", err)
	}

	g, err := graph.FromParts(edges, incidence)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	net := &transit.Network{Graph: g, Edges: infos, Vertices: vertices}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return net, nil
}

// unreached marks an entry with no known path.
const unreached = -1

func encodeRows(e *encoder, rows [][]routing.Entry[float64]) {
	e.count(len(rows))
	for _, row := range rows {
		e.flag(row != nil)
		for _, entry := range row {
			if !entry.Reached {
				e.f64(unreached)
			} else {
				e.f64(entry.Weight)
			}
			e.flag(entry.HasPrev)
			e.u32(entry.PrevEdge)
		}
	}
}

func decodeRows(raw []byte, g *graph.DirectedWeightedGraph[float64]) ([][]routing.Entry[float64], error) {
	d := &decoder{b: raw}
	n := g.VertexCount()
	if got := d.count(1); d.err == nil && got != n {
		d.fail("%d rows for %d vertices", got, n)
	}
	rows := make([][]routing.Entry[float64], n)
	for src := 0; src < n && d.err == nil; src++ {
		if !d.flag() {
			continue
		}
		if need := n * 13; need > len(d.b) {
			d.fail("row %d needs %d bytes, have %d", src, need, len(d.b))
			break
		}
		row := make([]routing.Entry[float64], n)
		for v := range row {
			w := d.f64()
			row[v] = routing.Entry[float64]{
				Reached:  w >= 0,
				HasPrev:  d.flag(),
				PrevEdge: d.u32(),
			}
			if row[v].Reached {
				row[v].Weight = w
			}
		}
		rows[src] = row
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return rows, nil
}
