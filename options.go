package session

import (
	"log/slog"
	"strings"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"

	"github.com/Protocol-Lattice/go-session/pkg/embed"
	"github.com/Protocol-Lattice/go-session/pkg/models"
	"github.com/Protocol-Lattice/go-session/pkg/preview"
	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Renderer turns the system prompt, user input and prompt context into the
// text actually sent to the backend. The default builds a deterministic
// prompt tree; callers with their own templating swap it here.
type Renderer func(system, input string, items []transcript.ContextItem, links []transcript.Link) string

const (
	defaultMaxSteps     = 20
	defaultContextLimit = 8
)

// Option configures a Session at construction time.
type Option func(*config) error

type config struct {
	model        string
	maxSteps     int
	systemPrompt string
	contextLimit int
	parallelism  int
	genOptions   models.Options
	tools        []tools.Tool
	logger       *slog.Logger
	previewer    preview.Previewer
	embedder     embed.Embedder
	renderer     Renderer
}

func (c *config) maxStepsValue() int {
	if c.maxSteps <= 0 {
		return defaultMaxSteps
	}
	return c.maxSteps
}

func (c *config) contextLimitValue() int {
	if c.contextLimit <= 0 {
		return defaultContextLimit
	}
	return c.contextLimit
}

func (c *config) loggerValue() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// WithModel names the backend model every step uses.
func WithModel(model string) Option {
	return func(c *config) error {
		c.model = strings.TrimSpace(model)
		return nil
	}
}

// WithMaxSteps caps how many adapter steps one turn may take before the
// session gives up on the model converging.
func WithMaxSteps(n int) Option {
	return func(c *config) error {
		c.maxSteps = n
		return nil
	}
}

// WithSystemPrompt prepends instructions to every rendered prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) error {
		c.systemPrompt = prompt
		return nil
	}
}

// WithGenerationOptions sets the sampling knobs forwarded to the adapter.
func WithGenerationOptions(opts models.Options) Option {
	return func(c *config) error {
		c.genOptions = opts
		return nil
	}
}

// WithTools registers tools the model may call.
func WithTools(ts ...tools.Tool) Option {
	return func(c *config) error {
		for _, t := range ts {
			if t == nil {
				continue
			}
			c.tools = append(c.tools, t)
		}
		return nil
	}
}

// WithUTCPTools registers remote tools served over a UTCP client.
func WithUTCPTools(client utcp.UtcpClientInterface, defs ...utcptools.Tool) Option {
	return func(c *config) error {
		for _, def := range defs {
			t, err := tools.NewUTCPTool(client, def)
			if err != nil {
				return err
			}
			c.tools = append(c.tools, t)
		}
		return nil
	}
}

// WithLogger attaches a structured logger. Without one the session is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithRenderer replaces the default prompt rendering.
func WithRenderer(r Renderer) Option {
	return func(c *config) error {
		c.renderer = r
		return nil
	}
}

// WithLinkPreviewer resolves URLs found in user input into link metadata
// attached to the prompt.
func WithLinkPreviewer(p preview.Previewer) Option {
	return func(c *config) error {
		c.previewer = p
		return nil
	}
}

// WithEmbedder ranks caller-supplied context items against the input so only
// the most relevant ones reach the prompt.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *config) error {
		c.embedder = e
		return nil
	}
}

// WithContextLimit caps how many context items survive embedder ranking.
func WithContextLimit(limit int) Option {
	return func(c *config) error {
		c.contextLimit = limit
		return nil
	}
}

// WithParallelism bounds how many tool calls of one step run at once.
func WithParallelism(n int) Option {
	return func(c *config) error {
		c.parallelism = n
		return nil
	}
}
