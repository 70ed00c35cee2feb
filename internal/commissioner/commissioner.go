// Package commissioner drives an external Thread commissioner CLI process
// over a serial line or pseudo-terminal, translating typed commissioning
// operations into the CLI's textual command/response protocol and back.
package commissioner

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// doneMarker is the literal last response line of every successful command.
const doneMarker = "[done]"

// DefaultCtl is the controller invocation on a stock border-router image.
const DefaultCtl = "sudo commissioner_ctl.py"

// Options tunes how the dispatcher drives the remote controller.
type Options struct {
	// Ctl is the controller command prefix used for init/execute/exit.
	Ctl string

	// Logout, when set, is written as a final raw line during Close.
	// Serial console sessions use "logout" to leave the login shell.
	Logout string
}

// Commissioner maps high-level commissioning operations onto exact CLI
// command strings over one Session. It is stateless between calls.
type Commissioner struct {
	session *Session
	opts    Options
	logger  *slog.Logger
}

// New stages the configuration payload through the session's shell, runs the
// controller init command and verifies its exit status.
func New(session *Session, cfg Config, opts Options, logger *slog.Logger) (*Commissioner, error) {
	if opts.Ctl == "" {
		opts.Ctl = DefaultCtl
	}
	c := &Commissioner{session: session, opts: opts, logger: logger}

	session.state = StateInitializing
	configPath, err := c.stageConfig(cfg.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("stage config: %w", err)
	}

	response, err := c.session.Command(fmt.Sprintf(`%s init "%s"`, c.opts.Ctl, configPath))
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	status, err := c.session.Command("echo $?")
	if err != nil {
		return nil, fmt.Errorf("init status probe: %w", err)
	}
	if len(status) == 0 || status[0] != "0" {
		return nil, &InitError{Output: response}
	}

	session.state = StateIdle
	logger.Info("commissioner initialized", "id", cfg.ID, "ccm", cfg.CCM)
	return c, nil
}

// Close exits the remote commissioner best-effort and releases the session.
func (c *Commissioner) Close() error {
	if _, err := c.session.Command(c.opts.Ctl + " exit"); err != nil {
		c.logger.Warn("commissioner exit", "err", err)
	}
	if c.opts.Logout != "" {
		if err := c.session.writeLine(c.opts.Logout); err != nil {
			c.logger.Warn("logout", "err", err)
		}
	}
	return c.session.Close()
}

// execute runs one commissioner command through the controller and applies
// the success convention: the last response line must be the done marker.
func (c *Commissioner) execute(cmd string) ([]string, error) {
	escaped := strings.ReplaceAll(cmd, `"`, `"\""`)
	response, err := c.session.Command(fmt.Sprintf(`%s execute "%s"`, c.opts.Ctl, escaped))
	if err != nil {
		return nil, err
	}
	if len(response) == 0 || response[len(response)-1] != doneMarker {
		return nil, &CommandError{Command: cmd, Response: response}
	}
	return response[:len(response)-1], nil
}

// firstLine guards scalar result parsing against an empty response body.
func firstLine(op string, response []string) (string, error) {
	if len(response) == 0 {
		return "", &CodecError{Field: op, Reason: "empty response"}
	}
	return response[0], nil
}

// Start petitions as active commissioner via the given border agent.
func (c *Commissioner) Start(borderAgentAddr string, borderAgentPort int) error {
	_, err := c.execute(fmt.Sprintf("start %s %d", borderAgentAddr, borderAgentPort))
	return err
}

// Stop resigns the commissioner role.
func (c *Commissioner) Stop() error {
	_, err := c.execute("stop")
	return err
}

// IsActive reports whether the commissioner currently holds an active
// session with the border agent.
func (c *Commissioner) IsActive() (bool, error) {
	response, err := c.execute("active")
	if err != nil {
		return false, err
	}
	line, err := firstLine("active", response)
	if err != nil {
		return false, err
	}
	switch {
	case strings.HasPrefix(line, "true"):
		return true, nil
	case strings.HasPrefix(line, "false"):
		return false, nil
	}
	return false, &CodecError{Field: "active", Reason: fmt.Sprintf("unrecognized result %q", line)}
}

// SessionID returns the commissioner session id assigned by the leader.
func (c *Commissioner) SessionID() (int, error) {
	response, err := c.execute("sessionid")
	if err != nil {
		return 0, err
	}
	line, err := firstLine("sessionid", response)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(line)
	if err != nil {
		return 0, &CodecError{Field: "sessionid", Reason: fmt.Sprintf("non-integer result %q", line)}
	}
	return id, nil
}

func tlvNameList(types []TLVType) (string, error) {
	names := make([]string, 0, len(types))
	for _, typ := range types {
		name, ok := typ.Name()
		if !ok {
			return "", &CodecError{Reason: fmt.Sprintf("unknown TLV type %d", typ)}
		}
		names = append(names, name)
	}
	return strings.Join(names, " "), nil
}

// CommissionerGet fetches commissioner dataset fields (MGMT_COMMISSIONER_GET).
func (c *Commissioner) CommissionerGet(types []TLVType) (Dataset, error) {
	names, err := tlvNameList(types)
	if err != nil {
		return nil, err
	}
	response, err := c.execute(strings.TrimSpace("commdataset get " + names))
	if err != nil {
		return nil, err
	}
	return DecodeCommissionerDataset(strings.Join(response, " "))
}

// CommissionerSet updates commissioner dataset fields (MGMT_COMMISSIONER_SET).
func (c *Commissioner) CommissionerSet(ds Dataset) error {
	doc, err := EncodeCommissionerDataset(ds)
	if err != nil {
		return err
	}
	_, err = c.execute(fmt.Sprintf("commdataset set '%s'", doc))
	return err
}

// ActiveGet fetches active operational dataset fields (MGMT_ACTIVE_GET).
func (c *Commissioner) ActiveGet(types []TLVType) (Dataset, error) {
	names, err := tlvNameList(types)
	if err != nil {
		return nil, err
	}
	response, err := c.execute(strings.TrimSpace("opdataset get active " + names))
	if err != nil {
		return nil, err
	}
	return DecodeActiveDataset(strings.Join(response, " "))
}

// ActiveSet updates the active operational dataset (MGMT_ACTIVE_SET).
func (c *Commissioner) ActiveSet(ds Dataset) error {
	doc, err := EncodeActiveDataset(ds)
	if err != nil {
		return err
	}
	_, err = c.execute(fmt.Sprintf("opdataset set active '%s'", doc))
	return err
}

// PendingGet fetches pending operational dataset fields (MGMT_PENDING_GET).
func (c *Commissioner) PendingGet(types []TLVType) (Dataset, error) {
	names, err := tlvNameList(types)
	if err != nil {
		return nil, err
	}
	response, err := c.execute(strings.TrimSpace("opdataset get pending " + names))
	if err != nil {
		return nil, err
	}
	return DecodePendingDataset(strings.Join(response, " "))
}

// PendingSet updates the pending operational dataset (MGMT_PENDING_SET).
func (c *Commissioner) PendingSet(ds Dataset) error {
	doc, err := EncodePendingDataset(ds)
	if err != nil {
		return err
	}
	_, err = c.execute(fmt.Sprintf("opdataset set pending '%s'", doc))
	return err
}

// BBRGet fetches BBR dataset fields (MGMT_BBR_GET).
func (c *Commissioner) BBRGet(types []TLVType) (Dataset, error) {
	names, err := tlvNameList(types)
	if err != nil {
		return nil, err
	}
	response, err := c.execute(strings.TrimSpace("bbrdataset get " + names))
	if err != nil {
		return nil, err
	}
	return DecodeBBRDataset(strings.Join(response, " "))
}

// BBRSet updates BBR dataset fields (MGMT_BBR_SET).
func (c *Commissioner) BBRSet(ds Dataset) error {
	doc, err := EncodeBBRDataset(ds)
	if err != nil {
		return err
	}
	_, err = c.execute(fmt.Sprintf("bbrdataset set '%s'", doc))
	return err
}

// EnableJoiner admits a joiner. An empty eui64 enables all joiners of that
// type; password is the PSKd where the flow needs one.
func (c *Commissioner) EnableJoiner(joinerType JoinerType, eui64, password string) error {
	parts := []string{"joiner", "enable", joinerType.String()}
	if eui64 != "" {
		parts = append(parts, eui64)
	} else {
		parts[1] = "enableall"
	}
	if password != "" {
		parts = append(parts, password)
	}
	_, err := c.execute(strings.Join(parts, " "))
	return err
}

// DisableJoiner removes a joiner from the steering data. The steering data
// is a bloom filter: removing one identifier clears bits other identifiers
// may share, so a disabled joiner can still match the filter and be treated
// as enabled. That is inherent to steering data, not a defect here.
func (c *Commissioner) DisableJoiner(joinerType JoinerType, eui64 string) error {
	parts := []string{"joiner", "disable", joinerType.String()}
	if eui64 != "" {
		parts = append(parts, eui64)
	} else {
		parts[1] = "disableall"
	}
	_, err := c.execute(strings.Join(parts, " "))
	return err
}

// EnergyScan triggers an energy scan (MGMT_ED_SCAN), waits for the scan to
// run, then collects the report from the target.
func (c *Commissioner) EnergyScan(channelMask uint32, count, period, scanDuration int, dstAddr string, wait time.Duration) (*EnergyReport, error) {
	_, err := c.execute(fmt.Sprintf("energy scan %d %d %d %d %s", channelMask, count, period, scanDuration, dstAddr))
	if err != nil {
		return nil, err
	}
	time.Sleep(wait)
	response, err := c.execute(fmt.Sprintf("energy report %s", dstAddr))
	if err != nil {
		return nil, err
	}
	first, err := firstLine("energy report", response)
	if err != nil {
		return nil, err
	}
	if first == "null" {
		return nil, &CommandError{
			Command:  fmt.Sprintf("energy report %s", dstAddr),
			Response: []string{fmt.Sprintf("no energy report found for %s", dstAddr)},
		}
	}
	return DecodeEnergyReport(strings.Join(response, " "))
}

// PanIDQuery asks the target to scan for the PAN id (MGMT_PANID_QUERY) and,
// after the wait, reports whether a conflict was detected.
func (c *Commissioner) PanIDQuery(channelMask uint32, panID uint16, dstAddr string, wait time.Duration) (bool, error) {
	_, err := c.execute(fmt.Sprintf("panid query %d %d %s", channelMask, panID, dstAddr))
	if err != nil {
		return false, err
	}
	time.Sleep(wait)
	response, err := c.execute(fmt.Sprintf("panid conflict %d", panID))
	if err != nil {
		return false, err
	}
	line, err := firstLine("panid conflict", response)
	if err != nil {
		return false, err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return false, &CodecError{Field: "panid conflict", Reason: fmt.Sprintf("non-integer result %q", line)}
	}
	return n != 0, nil
}

// AnnounceBegin sends MGMT_ANNOUNCE_BEGIN towards the target.
func (c *Commissioner) AnnounceBegin(channelMask uint32, count, period int, dstAddr string) error {
	_, err := c.execute(fmt.Sprintf("announce %d %d %d %s", channelMask, count, period, dstAddr))
	return err
}

// MLR registers multicast listeners on the primary BBR.
func (c *Commissioner) MLR(multicastAddrs []string, timeoutSec int) error {
	_, err := c.execute(fmt.Sprintf("mlr %s %d", strings.Join(multicastAddrs, " "), timeoutSec))
	return err
}

// Reenroll triggers MGMT_REENROLL on the target device.
func (c *Commissioner) Reenroll(dstAddr string) error {
	_, err := c.execute("reenroll " + dstAddr)
	return err
}

// DomainReset triggers MGMT_DOMAIN_RESET on the target device.
func (c *Commissioner) DomainReset(dstAddr string) error {
	_, err := c.execute("domainreset " + dstAddr)
	return err
}

// NetMigrate moves the target device to the designated network.
func (c *Commissioner) NetMigrate(dstAddr, designatedNetwork string) error {
	_, err := c.execute(fmt.Sprintf("migrate %s %s", dstAddr, designatedNetwork))
	return err
}

// RequestToken asks the registrar for a commissioner token.
func (c *Commissioner) RequestToken(registrarAddr string, registrarPort int) error {
	_, err := c.execute(fmt.Sprintf("token request %s %d", registrarAddr, registrarPort))
	return err
}

// SetToken stages a signed commissioner token and its verification
// certificate and installs them.
func (c *Commissioner) SetToken(signedToken, verifyCert []byte) error {
	tokenPath := scratchPath("token")
	if err := c.stageBytes(signedToken, tokenPath); err != nil {
		return err
	}
	certPath := scratchPath("token_cert")
	if err := c.stageBlob(verifyCert, certPath); err != nil {
		return err
	}
	_, err := c.execute(fmt.Sprintf("token set %s %s", tokenPath, certPath))
	return err
}

// Token returns the current commissioner token.
func (c *Commissioner) Token() ([]byte, error) {
	response, err := c.execute("token print")
	if err != nil {
		return nil, err
	}
	line, err := firstLine("token", response)
	if err != nil {
		return nil, err
	}
	return hexToBytes("token", line)
}
