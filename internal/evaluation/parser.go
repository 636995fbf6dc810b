// Package evaluation parses the text report of the quality-evaluation stage.
//
// The report is read in a single forward pass. A header line naming a
// statistic block is followed by one separator line and then exactly
// result.BlockSize "name: value" lines:
//
//	Baseline error statistics :
//	--
//	 min: 0.0012
//	 max: 0.0456
//	 mean: 0.0123
//	 median: 0.0100
//
// Anything outside a block is ignored.
package evaluation

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/signalnine/sfmbench/internal/result"
)

// Blocks lists the statistic blocks the parser recognizes.
var Blocks = []string{result.BaselineBlock, result.AngularBlock}

type Report struct {
	Blocks map[string]result.StatisticBlock
	RawLog string
}

// ParseError reports a line that does not fit the statistics grammar.
// Line is 1-based; it is the last line read when the stream ended early.
type ParseError struct {
	Line   int
	Text   string
	Block  string
	Reason string
	// Err is the read error when the line itself could not be read.
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
	}
	if e.Block == "" {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("line %d (%s): %s: %q", e.Line, e.Block, e.Reason, e.Text)
}

type state int

const (
	scanning state = iota
	skipping
	reading
)

type parser struct {
	state  state
	block  string
	count  int
	lineNo int
	last   string
	cur    result.StatisticBlock
	blocks map[string]result.StatisticBlock
	raw    strings.Builder
}

// Parse reads r to the end and returns the statistic blocks found in it.
// A block that is present but malformed or truncated fails the whole
// parse; a block that is absent is simply missing from Report.Blocks.
func Parse(r io.Reader) (*Report, error) {
	p := &parser{blocks: make(map[string]result.StatisticBlock)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := p.feed(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Line: p.lineNo + 1, Block: p.block, Reason: "unreadable line", Err: err}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return &Report{Blocks: p.blocks, RawLog: p.raw.String()}, nil
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLines parses an already split line stream.
func ParseLines(lines []string) (*Report, error) {
	return Parse(strings.NewReader(strings.Join(lines, "\n")))
}

func (p *parser) feed(line string) error {
	line = strings.TrimRight(line, "\r")
	p.lineNo++
	p.last = line
	p.raw.WriteString(line)
	p.raw.WriteByte('\n')

	switch p.state {
	case scanning:
		block := headerOf(line)
		if block == "" {
			return nil
		}
		if _, seen := p.blocks[block]; seen {
			return p.errorf(block, "repeated block header")
		}
		p.block = block
		p.state = skipping
	case skipping:
		p.state = reading
		p.count = 0
		p.cur = make(result.StatisticBlock, result.BlockSize)
	case reading:
		name, value, err := p.metric(line)
		if err != nil {
			return err
		}
		p.cur[name] = value
		p.count++
		if p.count == result.BlockSize {
			p.blocks[p.block] = p.cur
			p.state = scanning
			p.block = ""
			p.cur = nil
		}
	}
	return nil
}

func (p *parser) finish() error {
	if p.state == scanning {
		return nil
	}
	return p.errorf(p.block, fmt.Sprintf("stream ended after %d of %d metrics", p.count, result.BlockSize))
}

func (p *parser) metric(line string) (string, float64, error) {
	name, value, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return "", 0, p.errorf(p.block, "missing ':' delimiter")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, p.errorf(p.block, "empty metric name")
	}
	if _, dup := p.cur[name]; dup {
		return "", 0, p.errorf(p.block, "duplicate metric "+name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "", 0, p.errorf(p.block, "value is not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", 0, p.errorf(p.block, "value is not finite")
	}
	return name, v, nil
}

func (p *parser) errorf(block, reason string) *ParseError {
	return &ParseError{Line: p.lineNo, Text: p.last, Block: block, Reason: reason}
}

func headerOf(line string) string {
	for _, b := range Blocks {
		if strings.Contains(line, b) {
			return b
		}
	}
	return ""
}
