// Package decoder feeds demodulated audio to external decoders such as
// multimon-ng. Audio goes in on stdin as s16le PCM; the decoder's output is
// read back through a pty so line-buffered tools flush as they go.
package decoder

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/kr/pty"

	"github.com/chzchzchz/rtlrx/dsp"
)

// MultimonRate is the raw input rate multimon-ng expects.
const MultimonRate = 22050

type Decoder struct {
	Path string
	Args []string
	// Rate is the PCM rate the decoder expects.
	Rate int
}

// Multimon decodes the given multimon-ng modes (for example "FLEX" or
// "POCSAG1200") from raw PCM on stdin.
func Multimon(modes ...string) Decoder {
	args := []string{"-v9", "-c"}
	for _, m := range modes {
		args = append(args, "-a", m)
	}
	args = append(args, "-t", "raw", "-")
	return Decoder{Path: "multimon-ng", Args: args, Rate: MultimonRate}
}

// Pipe is a running decoder process.
type Pipe struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	ptm   *os.File
	linec chan string
	readc chan struct{}
}

func (d Decoder) Start(ctx context.Context) (*Pipe, error) {
	ptm, tty, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer tty.Close()
	cmd := exec.CommandContext(ctx, d.Path, d.Args...)
	cmd.Stdout, cmd.Stderr = tty, tty
	stdin, err := cmd.StdinPipe()
	if err != nil {
		ptm.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		ptm.Close()
		return nil, err
	}
	p := &Pipe{cmd: cmd, stdin: stdin, ptm: ptm, linec: make(chan string, 16), readc: make(chan struct{})}
	go p.readLines()
	return p, nil
}

func (p *Pipe) readLines() {
	defer close(p.readc)
	defer close(p.linec)
	s := bufio.NewScanner(p.ptm)
	for s.Scan() {
		p.linec <- strings.TrimRight(s.Text(), "\r")
	}
}

// Lines yields decoder output until the process exits. It must be drained.
func (p *Pipe) Lines() <-chan string { return p.linec }

// Write passes raw s16le PCM to the decoder.
func (p *Pipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *Pipe) WriteAudio(af dsp.AudioFrame, volume float64) error {
	_, err := p.Write(dsp.PCM16(af.Samples, volume))
	return err
}

// Close ends the input and waits for the decoder to exit.
func (p *Pipe) Close() error {
	p.stdin.Close()
	err := p.cmd.Wait()
	<-p.readc
	p.ptm.Close()
	return err
}

// Decode runs d over every frame from audioc and returns its output once
// audioc closes and the decoder exits.
func Decode(ctx context.Context, d Decoder, volume float64, audioc <-chan dsp.AudioFrame) (string, error) {
	p, err := d.Start(ctx)
	if err != nil {
		return "", err
	}
	outc := make(chan string, 1)
	go func() {
		var lines []string
		for l := range p.Lines() {
			lines = append(lines, l)
		}
		outc <- strings.Join(lines, "\n")
	}()
	var werr error
	for af := range audioc {
		if werr == nil {
			werr = p.WriteAudio(af, volume)
		}
	}
	err = p.Close()
	out := <-outc
	// A decoder that quit early breaks the pipe; its exit status says why.
	if werr != nil && !errors.Is(werr, syscall.EPIPE) && err == nil {
		err = werr
	}
	return out, err
}
