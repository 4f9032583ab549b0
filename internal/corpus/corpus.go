// Package corpus reads line-oriented hypothesis, reference, and source
// files. A file holds one segment per line; consecutive blocks of a
// fixed size belong to the same sentence.
package corpus

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

// Load reads all lines from path. Trailing carriage returns are
// stripped, everything else is kept verbatim.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, fmt.Sprintf("cannot read %s", path), err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	// Candidate lines can be long; the default 64KB token limit is too
	// tight for document-level output.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, fmt.Sprintf("reading %s", path), err)
	}

	return lines, nil
}

// Blocks splits lines into consecutive per-sentence pools of the given
// size. The line count must divide evenly; a remainder means the file
// and the block size disagree and no sensible split exists.
func Blocks(lines []string, size int) ([][]string, error) {
	if size < 1 {
		return nil, errors.ValidationError("block size must be at least 1")
	}
	if len(lines) == 0 {
		return nil, errors.ValidationError("no lines to split into blocks")
	}
	if len(lines)%size != 0 {
		return nil, errors.ValidationError(
			fmt.Sprintf("%d lines do not divide evenly into blocks of %d", len(lines), size))
	}

	blocks := make([][]string, 0, len(lines)/size)
	for start := 0; start < len(lines); start += size {
		blocks = append(blocks, lines[start:start+size])
	}
	return blocks, nil
}

// LoadBlocks reads path and splits it into per-sentence pools.
func LoadBlocks(path string, size int) ([][]string, error) {
	lines, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Blocks(lines, size)
}

// Strip trims surrounding whitespace from every line of a block,
// returning a new slice. Decoding compares stripped segments the way
// the line-oriented formats intend.
func Strip(block []string) []string {
	out := make([]string, len(block))
	for i, line := range block {
		out[i] = strings.TrimSpace(line)
	}
	return out
}
