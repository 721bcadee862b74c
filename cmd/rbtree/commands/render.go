package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/rbtree/pkg/config"
)

const yamlIndent = 2

// ErrInvalidKey is returned when an input token is not a base-10 int64.
var ErrInvalidKey = errors.New("invalid key")

// render writes value in the configured structured format, or calls table
// for the human-readable one.
func (app *App) render(w io.Writer, value any, table func(w io.Writer) error) error {
	switch app.cfg.Output.Format {
	case config.OutputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

		return nil
	case config.OutputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(yamlIndent)

		err := encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return encoder.Close()
	default:
		return table(w)
	}
}

// readKeys parses keys from args or, when there are none, from whitespace
// separated tokens of in.
func readKeys(args []string, in io.Reader) ([]int64, error) {
	if len(args) > 0 {
		return parseKeys(args)
	}

	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}

	return parseKeys(tokens)
}

func parseKeys(tokens []string) ([]int64, error) {
	keys := make([]int64, 0, len(tokens))

	for _, token := range tokens {
		key, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, token)
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func formatKeys(keys []int64) string {
	buf := make([]byte, 0, len(keys)*4)

	for idx, key := range keys {
		if idx > 0 {
			buf = append(buf, ' ')
		}

		buf = strconv.AppendInt(buf, key, 10)
	}

	return string(buf)
}
