package tracers

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/eth/tracers"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	logging "github.com/ipfs/go-log"

	// Register the bundled native and script tracers.
	_ "github.com/ethereum/go-ethereum/eth/tracers/js"
	_ "github.com/ethereum/go-ethereum/eth/tracers/native"
)

// Logger
var log = logging.Logger("tracers")

// ErrTracerNotFound is returned when a named tracer is not registered.
var ErrTracerNotFound = errors.New("tracer not found")

// identifier matches a plain tracer name as opposed to a script.
var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// New creates the named tracer from the default directory, or evaluates the
// name as a script if it is not a registered tracer.
// A callTracer asked for diffMode reports the state diff of the prestate tracer.
func New(name string, ctx *tracers.Context, cfg json.RawMessage) (*tracers.Tracer, error) {
	if name == "callTracer" {
		var config struct {
			DiffMode bool `json:"diffMode"`
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &config); err != nil {
				return nil, err
			}
		}
		if config.DiffMode {
			return newPrestateTracerWithConfig(prestateTracerConfig{DiffMode: true})
		}
	}
	tracer, err := tracers.DefaultDirectory.New(name, ctx, cfg)
	if err != nil {
		// A bare identifier reaching the script host is an unknown tracer name
		if identifier.MatchString(name) && tracers.DefaultDirectory.IsJS(name) {
			log.Debugf("Fail to create tracer %v: %v", name, err)
			return nil, fmt.Errorf("%w: %v", ErrTracerNotFound, name)
		}
		return nil, err
	}
	return tracer, nil
}

// NewStructLogger creates the opcode logger used when no tracer is named.
func NewStructLogger(cfg *logger.Config) *tracers.Tracer {
	l := logger.NewStructLogger(cfg)
	return &tracers.Tracer{
		Hooks:     l.Hooks(),
		GetResult: l.GetResult,
		Stop:      l.Stop,
	}
}
