package screen

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/tinywideclouds/go-key-vault/internal/keys"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
	"golang.org/x/term"
)

// Terminal is a line-oriented UI on a reader/writer pair. When the reader is
// an interactive terminal, PINs are read without echo.
type Terminal struct {
	mu    sync.Mutex
	in    *bufio.Reader
	fd    int
	tty   bool
	out   io.Writer
	theme Theme
}

// NewTerminal creates a terminal UI.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		in:    bufio.NewReader(in),
		out:   out,
		theme: NewTheme("default", BuiltinThemes["default"]),
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.tty = true
	}
	return t
}

// SetTheme implements UI.
func (t *Terminal) SetTheme(theme Theme) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.theme = theme
}

// Loading implements UI.
func (t *Terminal) Loading(title, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.theme.Title.Render("… "+title))
	if detail != "" {
		fmt.Fprintln(t.out, t.theme.Error.Render(detail))
	}
}

// Success implements UI.
func (t *Terminal) Success(ctx context.Context, title, message string, delay time.Duration) error {
	t.mu.Lock()
	fmt.Fprintln(t.out, t.theme.Border.Render(t.theme.Title.Render(title)+"\n"+message))
	t.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alert implements UI.
func (t *Terminal) Alert(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.theme.Error.Render("! "+message))
}

// Message implements UI.
func (t *Terminal) Message(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, text)
}

// Welcome implements UI.
func (t *Terminal) Welcome(hasKeys bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.theme.Title.Render("Key Vault"))
	if !hasKeys {
		fmt.Fprintln(t.out, t.theme.Muted.Render("There are no keys in this vault yet."))
	}
}

// KeyList implements UI.
func (t *Terminal) KeyList(entries []keyvault.KeyEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	networks, groups := keyvault.GroupByNetwork(entries)
	fmt.Fprintln(t.out, t.theme.Muted.Render("Keys in this vault"))
	n := 0
	for _, network := range networks {
		fmt.Fprintln(t.out, t.theme.Title.Render(network))
		for _, e := range groups[network] {
			n++
			lock := ""
			if e.HasPinProtection {
				lock = " [PIN]"
			}
			fmt.Fprintf(t.out, "  %d) %s%s\n", n, e.Address, lock)
		}
	}
}

// Prompt implements UI.
func (t *Terminal) Prompt(ctx context.Context, p Prompt) (Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if p.Title != "" {
		fmt.Fprintln(t.out, t.theme.Title.Render(p.Title))
	}
	if p.Message != "" {
		fmt.Fprintln(t.out, p.Message)
	}

	switch p.Kind {
	case KindPhoneNumber:
		return t.phoneNumber(p)
	case KindPassphraseDisplay:
		fmt.Fprintln(t.out, t.theme.Border.Render(p.Value))
		fmt.Fprintln(t.out, t.theme.Muted.Render("Write this passphrase down. It is the only backup of your key."))
		return t.confirm("I have written it down")
	case KindPassphraseConfirm:
		return t.retype(p.Value)
	case KindPIN:
		return t.pin()
	case KindRestore:
		return t.restore(ctx, p)
	case KindTxDetail:
		return t.txDetail(p)
	case KindKeyDetail:
		return t.keyDetail(p)
	case KindAddKey:
		return t.addKey()
	}
	return Reply{}, fmt.Errorf("unsupported prompt %q", p.Kind)
}

func (t *Terminal) phoneNumber(p Prompt) (Reply, error) {
	line, err := t.ask(fmt.Sprintf("Phone number [%s] (skip/cancel): ", p.Value))
	if err != nil {
		return Reply{}, err
	}
	switch strings.ToLower(line) {
	case "skip":
		return Reply{Choice: Skip, Value: p.Value}, nil
	case "cancel":
		return Reply{Choice: Cancel}, nil
	case "":
		return Reply{Choice: OK, Value: p.Value}, nil
	}
	return Reply{Choice: OK, Value: line}, nil
}

func (t *Terminal) retype(passphrase string) (Reply, error) {
	want := keys.Normalize(passphrase)
	for {
		line, err := t.ask("Retype the passphrase (empty to cancel): ")
		if err != nil {
			return Reply{}, err
		}
		if line == "" {
			return Reply{Choice: Cancel}, nil
		}
		got := keys.Normalize(line)
		if got == want {
			return Reply{Choice: OK, Value: got}, nil
		}
		d := levenshtein.ComputeDistance(got, want)
		fmt.Fprintln(t.out, t.theme.Error.Render(fmt.Sprintf("Passphrase does not match (%d characters differ).", d)))
	}
}

func (t *Terminal) pin() (Reply, error) {
	for {
		line, err := t.secret("PIN (4-12 digits, empty to cancel): ")
		if err != nil {
			return Reply{}, err
		}
		if line == "" {
			return Reply{Choice: Cancel}, nil
		}
		if err := keys.ValidatePIN(line); err != nil {
			fmt.Fprintln(t.out, t.theme.Error.Render(err.Error()))
			continue
		}
		return Reply{Choice: OK, Value: line}, nil
	}
}

func (t *Terminal) restore(ctx context.Context, p Prompt) (Reply, error) {
	for {
		line, err := t.ask("Backup passphrase (empty to cancel): ")
		if err != nil {
			return Reply{}, err
		}
		if line == "" {
			return Reply{Choice: Cancel}, nil
		}
		if p.Validate != nil {
			desc, err := p.Validate(ctx, line)
			if err != nil {
				fmt.Fprintln(t.out, t.theme.Error.Render(err.Error()))
				continue
			}
			fmt.Fprintln(t.out, t.theme.Muted.Render(desc))
		}
		reply, err := t.confirm("Restore this key")
		if err != nil || reply.Choice != OK {
			return reply, err
		}
		return Reply{Choice: OK, Value: keys.Normalize(line)}, nil
	}
}

func (t *Terminal) txDetail(p Prompt) (Reply, error) {
	fmt.Fprintf(t.out, "Platform: %s\nAccount:  %s\nAddress:  %s\n", p.Platform, p.AccountNo, p.Address)
	if p.Tx != nil {
		body, _ := json.MarshalIndent(p.Tx, "", "  ")
		fmt.Fprintln(t.out, t.theme.Border.Render(string(body)))
	}
	reply, err := t.confirm("Sign this transaction")
	if err != nil || reply.Choice != OK || !p.RequirePIN {
		return reply, err
	}
	return t.pin()
}

func (t *Terminal) keyDetail(p Prompt) (Reply, error) {
	if d := p.Detail; d != nil {
		fmt.Fprintf(t.out, "Network:    %s\nAddress:    %s\nAccount:    %s\nPublic key: %s\n", d.Network, d.Address, d.AccountNo, d.PublicKey)
		if d.HasPinProtection {
			fmt.Fprintln(t.out, t.theme.Muted.Render("Protected by PIN"))
		}
		if len(d.PassphraseImage) > 0 {
			fmt.Fprintln(t.out, t.theme.Muted.Render(fmt.Sprintf("Passphrase image available (%d bytes)", len(d.PassphraseImage))))
		}
	}
	return t.confirm("Close")
}

func (t *Terminal) addKey() (Reply, error) {
	mode, err := t.ask("Generate a new key or restore one? [generate]/restore/cancel: ")
	if err != nil {
		return Reply{}, err
	}
	switch strings.ToLower(mode) {
	case "", "g", AddGenerate:
		mode = AddGenerate
	case "r", AddRestore:
		mode = AddRestore
	default:
		return Reply{Choice: Cancel}, nil
	}
	platform, err := t.ask("Platform [EQH]: ")
	if err != nil {
		return Reply{}, err
	}
	if platform == "" {
		platform = "EQH"
	}
	network, err := t.ask("Network [Main] (cancel): ")
	if err != nil {
		return Reply{}, err
	}
	if strings.EqualFold(network, "cancel") {
		return Reply{Choice: Cancel}, nil
	}
	if network == "" {
		network = "Main"
	}
	return Reply{Choice: OK, Value: mode, Platform: strings.ToUpper(platform), Network: network}, nil
}

func (t *Terminal) confirm(question string) (Reply, error) {
	line, err := t.ask(question + "? [y/N]: ")
	if err != nil {
		return Reply{}, err
	}
	switch strings.ToLower(line) {
	case "y", "yes", "ok":
		return Reply{Choice: OK}, nil
	}
	return Reply{Choice: Cancel}, nil
}

func (t *Terminal) ask(label string) (string, error) {
	fmt.Fprint(t.out, label)
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) secret(label string) (string, error) {
	if !t.tty {
		return t.ask(label)
	}
	fmt.Fprint(t.out, label)
	defer fmt.Fprintln(t.out)
	raw, err := term.ReadPassword(t.fd)
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// ReadLine reads one trimmed line, for menus driven outside Prompt.
func (t *Terminal) ReadLine(label string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ask(label)
}
