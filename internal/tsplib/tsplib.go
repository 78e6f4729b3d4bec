// Package tsplib reads CVRP instances in the TSPLIB format and reads and writes
// solutions in the CVRPLIB ".sol" layout.
package tsplib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"cvrpsolver/internal/opt"
)

var (
	ErrSyntax          = errors.New("tsplib: syntax error")
	ErrUnsupportedType = errors.New("tsplib: unsupported problem")
	ErrMissingSection  = errors.New("tsplib: missing section")
)

// File is a parsed instance file. Node ids are the 1-based TSPLIB ids.
type File struct {
	Name           string
	Comment        string
	Type           string
	EdgeWeightType string
	Dimension      int
	Capacity       int
	Coords         map[int]opt.Point
	Demands        map[int]int
	Depots         []int
}

const (
	sectionNone = iota
	sectionCoords
	sectionDemands
	sectionDepots
)

// ParseFile opens and parses path.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*File, error) {
	out := &File{Coords: map[int]opt.Point{}, Demands: map[int]int{}}
	sc := bufio.NewScanner(r)
	section := sectionNone
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch line {
		case "NODE_COORD_SECTION":
			section = sectionCoords
			continue
		case "DEMAND_SECTION":
			section = sectionDemands
			continue
		case "DEPOT_SECTION":
			section = sectionDepots
			continue
		case "EOF":
			if err := out.check(); err != nil {
				return nil, err
			}
			return out, nil
		}
		if key, val, ok := header(line); ok {
			if err := out.setHeader(key, val, lineNo); err != nil {
				return nil, err
			}
			section = sectionNone
			continue
		}
		fields := strings.Fields(line)
		switch section {
		case sectionCoords:
			if len(fields) < 3 {
				return nil, syntaxErr(lineNo, "coordinate line needs id x y")
			}
			id, err1 := strconv.Atoi(fields[0])
			x, err2 := strconv.ParseFloat(fields[1], 64)
			y, err3 := strconv.ParseFloat(fields[2], 64)
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, syntaxErr(lineNo, err.Error())
			}
			out.Coords[id] = opt.Point{X: x, Y: y}
		case sectionDemands:
			if len(fields) < 2 {
				return nil, syntaxErr(lineNo, "demand line needs id demand")
			}
			id, err1 := strconv.Atoi(fields[0])
			d, err2 := strconv.Atoi(fields[1])
			if err := errors.Join(err1, err2); err != nil {
				return nil, syntaxErr(lineNo, err.Error())
			}
			out.Demands[id] = d
		case sectionDepots:
			id, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, syntaxErr(lineNo, err.Error())
			}
			if id == -1 {
				section = sectionNone
				continue
			}
			out.Depots = append(out.Depots, id)
		default:
			return nil, syntaxErr(lineNo, fmt.Sprintf("unexpected line %q", line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := out.check(); err != nil {
		return nil, err
	}
	return out, nil
}

// header splits "KEY : VALUE" lines. Section keywords carry no colon.
func header(line string) (string, string, bool) {
	key, val, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return strings.ToUpper(key), strings.TrimSpace(val), true
}

func (f *File) setHeader(key, val string, lineNo int) error {
	var err error
	switch key {
	case "NAME":
		f.Name = val
	case "COMMENT":
		f.Comment = val
	case "TYPE":
		f.Type = strings.ToUpper(val)
	case "EDGE_WEIGHT_TYPE":
		f.EdgeWeightType = strings.ToUpper(val)
	case "DIMENSION":
		f.Dimension, err = strconv.Atoi(val)
	case "CAPACITY":
		f.Capacity, err = strconv.Atoi(val)
	}
	if err != nil {
		return syntaxErr(lineNo, fmt.Sprintf("%s: %v", key, err))
	}
	return nil
}

func (f *File) check() error {
	if f.Type != "" && f.Type != "CVRP" {
		return fmt.Errorf("%w: TYPE %s", ErrUnsupportedType, f.Type)
	}
	if f.EdgeWeightType != "" && f.EdgeWeightType != "EUC_2D" {
		return fmt.Errorf("%w: EDGE_WEIGHT_TYPE %s", ErrUnsupportedType, f.EdgeWeightType)
	}
	if len(f.Coords) == 0 {
		return fmt.Errorf("%w: NODE_COORD_SECTION", ErrMissingSection)
	}
	if f.Dimension > 0 && f.Dimension != len(f.Coords) {
		return fmt.Errorf("%w: DIMENSION %d but %d coordinates", ErrSyntax, f.Dimension, len(f.Coords))
	}
	for id := range f.Demands {
		if _, ok := f.Coords[id]; !ok {
			return fmt.Errorf("%w: demand for unknown node %d", ErrSyntax, id)
		}
	}
	return nil
}

// DepotID is the first depot listed, or node 1 when the file has no DEPOT_SECTION.
func (f *File) DepotID() int {
	if len(f.Depots) > 0 {
		return f.Depots[0]
	}
	return 1
}

// Instance converts the file into a solver instance. Customers keep their
// TSPLIB ids and are ordered by id.
func (f *File) Instance() (*opt.Instance, error) {
	depotID := f.DepotID()
	depot, ok := f.Coords[depotID]
	if !ok {
		return nil, fmt.Errorf("%w: depot node %d has no coordinates", ErrSyntax, depotID)
	}
	ids := make([]int, 0, len(f.Coords))
	for id := range f.Coords {
		if id != depotID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	customers := make([]opt.Customer, len(ids))
	for i, id := range ids {
		customers[i] = opt.Customer{ID: id, Pos: f.Coords[id], Demand: f.Demands[id]}
	}
	name := f.Name
	if name == "" {
		name = "unnamed"
	}
	inst, err := opt.NewInstance(name, depot, customers, f.Capacity)
	if err != nil {
		return nil, err
	}
	return inst.WithDepotID(depotID), nil
}

// ReadInstance parses r and converts it in one step.
func ReadInstance(r io.Reader) (*opt.Instance, error) {
	f, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return f.Instance()
}

func syntaxErr(line int, msg string) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, msg)
}
