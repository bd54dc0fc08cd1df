package sensor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kennelworks/hushd/internal/util"
)

// NewReplay loads newline-separated integer readings from path and
// returns a sampler that cycles through them forever. Blank lines and
// lines starting with '#' are skipped. Useful for bench runs without
// sensor hardware attached.
func NewReplay(path string) (*Scripted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, util.WrapError("open replay file", err)
	}
	defer util.SafeCloseFunc(f, "replay file")()

	var samples []int
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("replay file %s line %d: %w", path, line, err)
		}
		samples = append(samples, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, util.WrapError("read replay file", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("replay file %s contains no samples", path)
	}

	return NewLoopingScripted(samples...), nil
}
