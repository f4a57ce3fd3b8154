// Package snapshot reads and writes the plain text graph snapshot format.
//
// A snapshot holds one record per node in ID order followed by one record per
// link in creation order:
//
//	kind,in0,in1,in2,in3,inputCount,inputLimit,outputCount,v0,...,v15,x,y,
//	?from?to
//
// Numbers are written in the shortest form that reads back as the same float32.
// Node IDs are compacted to the record index on write so a loaded graph
// numbers its nodes from zero.
package snapshot

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/soypat/fnode"
	"github.com/soypat/geometry/ms2"
	"github.com/spf13/afero"
)

// Number of fields of a node record before the output values.
const headerFields = 8

// Encode writes the snapshot of g to w.
func Encode(w io.Writer, g *fnode.Graph) error {
	nodes := g.Nodes()
	rank := make(map[fnode.NodeID]int, len(nodes))
	for i, n := range nodes {
		rank[n.ID()] = i
	}
	var buf []byte
	for _, n := range nodes {
		buf = appendNodeRecord(buf[:0], g, n, rank)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	for _, l := range g.Lines() {
		buf = append(buf[:0], '?')
		buf = strconv.AppendInt(buf, int64(rank[l.From]), 10)
		buf = append(buf, '?')
		buf = strconv.AppendInt(buf, int64(rank[l.To]), 10)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func appendNodeRecord(b []byte, g *fnode.Graph, n *fnode.Node, rank map[fnode.NodeID]int) []byte {
	b = appendField(b, float32(n.Kind()))
	inputs := g.Inputs(n.ID())
	for i := 0; i < fnode.MaxInputs; i++ {
		in := float32(-1)
		if i < len(inputs) {
			in = float32(rank[inputs[i]])
		}
		b = appendField(b, in)
	}
	b = appendField(b, float32(len(inputs)))
	b = appendField(b, float32(n.Kind().InputLimit()))
	b = appendField(b, float32(n.Width()))
	var values [fnode.MaxValues]float32
	copy(values[:], n.Values())
	for _, v := range values {
		b = appendField(b, v)
	}
	pos := n.Position()
	b = appendField(b, pos.X)
	b = appendField(b, pos.Y)
	return append(b, '\n')
}

func appendField(b []byte, v float32) []byte {
	b = strconv.AppendFloat(b, float64(v), 'g', -1, 32)
	return append(b, ',')
}

type nodeRecord struct {
	kind   fnode.Kind
	values []float32
	pos    ms2.Vec
}

// Decode reads a snapshot and builds a new graph configured with cfg.
// Link records are replayed through [fnode.Graph.Link] in file order so the
// restored graph obeys the same link rules as an interactively built one.
// Input columns of node records are informational and ignored.
// Links refused on replay are dropped and reported in the returned error,
// which then does not wrap [fnode.ErrPersistenceFault].
func Decode(r io.Reader, cfg fnode.Config) (*fnode.Graph, error) {
	g := fnode.New(cfg)
	var ids []fnode.NodeID // Record index to graph node ID.
	var warnings *multierror.Error
	sc := bufio.NewScanner(r)
	lineno := 0
	linking := false
	for sc.Scan() {
		lineno++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "?") {
			if !linking {
				// Every node exists now, compute widths for link validation.
				linking = true
				if err := g.Evaluate(); fnode.IsFatal(err) {
					return nil, fmt.Errorf("line %d: %w", lineno, err)
				}
			}
			from, to, err := parseLink(text, len(ids))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %w", lineno, fnode.ErrPersistenceFault, err)
			}
			_, err = g.Link(ids[from], ids[to])
			if err != nil {
				warnings = multierror.Append(warnings, fmt.Errorf("line %d: %w", lineno, err))
				continue
			}
			// Downstream link validation needs the new widths.
			if err := g.Evaluate(); fnode.IsFatal(err) {
				return nil, fmt.Errorf("line %d: %w", lineno, err)
			}
			continue
		} else if linking {
			return nil, fmt.Errorf("line %d: node record after link records: %w", lineno, fnode.ErrPersistenceFault)
		}
		rec, err := parseNode(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %w", lineno, fnode.ErrPersistenceFault, err)
		}
		id, err := addRecord(g, rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %w", lineno, fnode.ErrPersistenceFault, err)
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", fnode.ErrPersistenceFault, err)
	}
	if err := g.Evaluate(); fnode.IsFatal(err) {
		return nil, err
	}
	return g, warnings.ErrorOrNil()
}

func addRecord(g *fnode.Graph, rec nodeRecord) (fnode.NodeID, error) {
	var id fnode.NodeID
	switch rec.kind {
	case fnode.KindVertexOutput:
		id = g.VertexSink()
	case fnode.KindFragmentOutput:
		id = g.FragmentSink()
	default:
		var err error
		id, err = g.AddNode(rec.kind)
		if err != nil {
			return fnode.NoNode, err
		}
	}
	if rec.kind.Category() == fnode.CategoryLiteral {
		// Missing trailing values read as zero.
		var values [fnode.MaxValues]float32
		copy(values[:], rec.values)
		if err := g.SetValues(id, values[:rec.kind.FixedWidth()]...); err != nil {
			return fnode.NoNode, err
		}
	}
	return id, g.SetPosition(id, rec.pos)
}

func parseNode(text string) (rec nodeRecord, err error) {
	fields := strings.Split(strings.TrimSuffix(text, ","), ",")
	if len(fields) < headerFields+2 {
		return rec, fmt.Errorf("node record has %d fields", len(fields))
	}
	nums := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return rec, fmt.Errorf("field %d: %w", i, err)
		}
		nums[i] = float32(v)
	}
	rec.kind = fnode.Kind(nums[0])
	if float32(rec.kind) != nums[0] || !rec.kind.Valid() {
		return rec, fmt.Errorf("invalid node kind %s", fields[0])
	}
	last := len(nums) - 2
	rec.values = nums[headerFields:last]
	rec.pos = ms2.Vec{X: nums[last], Y: nums[last+1]}
	return rec, nil
}

func parseLink(text string, numNodes int) (from, to int, err error) {
	fields := strings.Split(strings.TrimPrefix(text, "?"), "?")
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("malformed link record %q", text)
	}
	from, err = strconv.Atoi(fields[0])
	if err == nil {
		to, err = strconv.Atoi(fields[1])
	}
	if err != nil {
		return 0, 0, err
	}
	if from < 0 || from >= numNodes || to < 0 || to >= numNodes {
		return 0, 0, fmt.Errorf("link %d->%d references a node outside [0,%d)", from, to, numNodes)
	}
	return from, to, nil
}

// Save writes the snapshot of g to path. The file is replaced only once the
// complete snapshot has been written.
func Save(fs afero.Fs, path string, g *fnode.Graph) error {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return fmt.Errorf("%w: %w", fnode.ErrPersistenceFault, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", fnode.ErrPersistenceFault, err)
		}
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %w", fnode.ErrPersistenceFault, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("%w: %w", fnode.ErrPersistenceFault, err)
	}
	g.Logger().Info("snapshot saved", "path", path, "bytes", buf.Len())
	return nil
}

// Load reads the snapshot at path. If the file is missing or malformed Load
// returns a new graph holding only the two sinks together with an error
// wrapping [fnode.ErrPersistenceFault], so callers may carry on with an empty graph.
func Load(fs afero.Fs, path string, cfg fnode.Config) (*fnode.Graph, error) {
	fallback := func(err error) (*fnode.Graph, error) {
		g := fnode.New(cfg)
		if !errors.Is(err, fnode.ErrPersistenceFault) {
			err = fmt.Errorf("%w: %w", fnode.ErrPersistenceFault, err)
		}
		g.Logger().Warn("snapshot not loaded, starting with an empty graph", "path", path, "error", err)
		return g, err
	}
	f, err := fs.Open(path)
	if err != nil {
		return fallback(err)
	}
	defer f.Close()
	g, err := Decode(f, cfg)
	if g == nil {
		return fallback(err)
	}
	if err != nil {
		g.Logger().Warn("snapshot loaded with refused links", "path", path, "error", err)
	} else {
		g.Logger().Info("snapshot loaded", "path", path, "nodes", g.Len(), "lines", len(g.Lines()))
	}
	return g, err
}
