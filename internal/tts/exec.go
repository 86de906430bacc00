package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

const execName = "exec"

// ExecProvider runs a local command per call. The command reads a JSON
// request on stdin and writes raw audio to stdout.
type ExecProvider struct {
	cmd    []string
	format string
}

type execRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Model string  `json:"model,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

func NewExecProvider(command, format string) (*ExecProvider, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("tts command empty")
	}
	if format == "" {
		format = "mp3"
	}
	return &ExecProvider{cmd: args, format: strings.TrimPrefix(format, ".")}, nil
}

func (p *ExecProvider) Name() string   { return execName }
func (p *ExecProvider) Format() string { return p.format }

func (p *ExecProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(execRequest{Text: req.Text, Voice: req.Voice, Model: req.Model, Speed: req.Speed})
	if err != nil {
		return nil, apierr.Validation(execName, err.Error())
	}

	cmd := exec.CommandContext(ctx, p.cmd[0], p.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, apierr.FromTransport(execName, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &apierr.Error{
				Provider: execName,
				Kind:     apierr.KindTransient,
				Message:  fmt.Sprintf("exit %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())),
				Err:      err,
			}
		}
		return nil, &apierr.Error{Provider: execName, Kind: apierr.KindValidation, Message: "cannot start command", Err: err}
	}
	if stdout.Len() == 0 {
		return nil, apierr.EmptyResponse(execName)
	}
	return stdout.Bytes(), nil
}
