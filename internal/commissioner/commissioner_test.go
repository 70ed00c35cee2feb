package commissioner

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// newShellTransport scripts a login shell running the controller wrapper.
// Staging and init plumbing is answered generically; commissioner commands
// are handed to respond, which returns the response body lines.
func newShellTransport(respond func(cmd string) []string) *fakeTransport {
	tr := &fakeTransport{}
	tr.onWrite = func(line string) {
		out := line + "\r\n"
		var body []string
		switch {
		case line == "echo $?":
			body = []string{"0"}
		case strings.HasPrefix(line, "echo "):
			// Staging appends, no output.
		case strings.HasPrefix(line, testCtl+" init "):
			// Successful init prints nothing.
		default:
			if respond != nil {
				body = respond(line)
			}
		}
		for _, l := range body {
			out += l + "\r\n"
		}
		tr.feed(out + testPrompt + "~$ ")
	}
	return tr
}

const testCtl = "commissioner_ctl"

func newTestCommissioner(t *testing.T, respond func(cmd string) []string) (*Commissioner, *fakeTransport) {
	t.Helper()
	tr := newShellTransport(respond)
	s := NewSession(tr, SessionConfig{
		Prompt:         testPrompt,
		CommandTimeout: time.Second,
		PollInterval:   time.Millisecond,
	}, discardLogger())
	c, err := New(s, Config{
		ID:   "test-comm",
		PSKc: []byte{0x3a, 0xa5, 0x5f, 0x91, 0xca, 0x47, 0xd1, 0xe4},
	}, Options{Ctl: testCtl}, discardLogger())
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return c, tr
}

// executed maps controller invocations back to the commissioner command
// they wrap, or "" when the line is not an execute call.
func executed(line string) string {
	const prefix = testCtl + ` execute "`
	if !strings.HasPrefix(line, prefix) || !strings.HasSuffix(line, `"`) {
		return ""
	}
	return line[len(prefix) : len(line)-1]
}

func respondTo(t *testing.T, want string, body []string) func(string) []string {
	t.Helper()
	return func(line string) []string {
		cmd := executed(line)
		if cmd == "" {
			t.Errorf("unexpected shell line %q", line)
			return nil
		}
		if cmd != want {
			t.Errorf("command = %q, want %q", cmd, want)
		}
		return body
	}
}

func TestInitStagesConfigAndProbesStatus(t *testing.T) {
	tr := newShellTransport(nil)
	s := NewSession(tr, SessionConfig{
		Prompt:         testPrompt,
		CommandTimeout: time.Second,
		PollInterval:   time.Millisecond,
	}, discardLogger())

	_, err := New(s, Config{ID: "probe", PSKc: []byte{0x01, 0x02}}, Options{Ctl: testCtl}, discardLogger())
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	var initCmd, configStage string
	for _, line := range tr.writes {
		if strings.HasPrefix(line, testCtl+" init ") {
			initCmd = line
		}
		if strings.HasPrefix(line, "echo '{") {
			configStage = line
		}
	}
	if configStage == "" {
		t.Fatal("config payload was never staged")
	}
	if initCmd == "" {
		t.Fatal("init command was never issued")
	}

	start := strings.Index(configStage, "'")
	end := strings.LastIndex(configStage, `' >> '`)
	if start < 0 || end <= start {
		t.Fatalf("unparseable staging line %q", configStage)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(configStage[start+1:end]), &payload); err != nil {
		t.Fatalf("staged payload is not JSON: %v", err)
	}
	if payload["Id"] != "probe" {
		t.Errorf("Id = %v", payload["Id"])
	}
	if payload["PSKc"] != "0102" {
		t.Errorf("PSKc = %v, want hex", payload["PSKc"])
	}
	if payload["EnableCcm"] != false {
		t.Errorf("EnableCcm = %v", payload["EnableCcm"])
	}
	if payload["LogLevel"] != "debug" {
		t.Errorf("LogLevel = %v, want default", payload["LogLevel"])
	}
	if payload["KeepAliveInterval"] != float64(40) || payload["MaxConnectionNum"] != float64(100) {
		t.Errorf("tuning defaults missing: %v", payload)
	}
	if payload["LogFile"] != "/tmp/commissioner.log" {
		t.Errorf("LogFile = %v", payload["LogFile"])
	}

	// Init references the staged path.
	path := configStage[end+len(`' >> '`) : len(configStage)-1]
	if initCmd != testCtl+` init "`+path+`"` {
		t.Errorf("init = %q does not reference staged path %q", initCmd, path)
	}
}

func TestInitFailsOnNonZeroStatus(t *testing.T) {
	tr := &fakeTransport{}
	tr.onWrite = func(line string) {
		out := line + "\r\n"
		switch {
		case line == "echo $?":
			out += "1\r\n"
		case strings.HasPrefix(line, testCtl+" init "):
			out += "error: no such file\r\n"
		}
		tr.feed(out + testPrompt + "~$ ")
	}
	s := NewSession(tr, SessionConfig{
		Prompt:         testPrompt,
		CommandTimeout: time.Second,
		PollInterval:   time.Millisecond,
	}, discardLogger())

	_, err := New(s, Config{ID: "x"}, Options{Ctl: testCtl}, discardLogger())
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("err = %v, want InitError", err)
	}
	if len(initErr.Output) == 0 || initErr.Output[0] != "error: no such file" {
		t.Errorf("init output not preserved: %q", initErr.Output)
	}
}

func TestExecuteStripsDoneMarker(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "sessionid", []string{"57", "[done]"}))
	id, err := c.SessionID()
	if err != nil {
		t.Fatalf("sessionid failed: %v", err)
	}
	if id != 57 {
		t.Errorf("id = %d, want 57", id)
	}
}

func TestExecuteFailsWithoutDoneMarker(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "stop", []string{"failed: not started"}))
	err := c.Stop()
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want CommandError", err)
	}
	if cmdErr.Command != "stop" {
		t.Errorf("Command = %q", cmdErr.Command)
	}
	if len(cmdErr.Response) != 1 || cmdErr.Response[0] != "failed: not started" {
		t.Errorf("Response = %q", cmdErr.Response)
	}
}

func TestExecuteEscapesQuotes(t *testing.T) {
	var got string
	c, _ := newTestCommissioner(t, func(line string) []string {
		got = line
		return []string{"[done]"}
	})
	if err := c.ActiveSet(Dataset{TLVNetworkName: "net"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !strings.Contains(got, `"\""NetworkName"\""`) {
		t.Errorf("quotes not escaped in %q", got)
	}
}

func TestIsActive(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "active", []string{"false", "[done]"}))
	active, err := c.IsActive()
	if err != nil {
		t.Fatalf("active failed: %v", err)
	}
	if active {
		t.Error("active = true, want false")
	}
}

func TestStartCommandString(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "start fdaa::1 49191", []string{"[done]"}))
	if err := c.Start("fdaa::1", 49191); err != nil {
		t.Fatalf("start failed: %v", err)
	}
}

func TestEnableJoinerVariants(t *testing.T) {
	cases := []struct {
		typ      JoinerType
		eui64    string
		password string
		want     string
	}{
		{JoinerMeshCoP, "0x1122334455667788", "PSKD01", "joiner enable meshcop 0x1122334455667788 PSKD01"},
		{JoinerAE, "0x1122334455667788", "", "joiner enable ae 0x1122334455667788"},
		{JoinerMeshCoP, "", "PSKD01", "joiner enableall meshcop PSKD01"},
		{JoinerNMKP, "", "", "joiner enableall nmkp"},
	}
	for _, tc := range cases {
		c, _ := newTestCommissioner(t, respondTo(t, tc.want, []string{"[done]"}))
		if err := c.EnableJoiner(tc.typ, tc.eui64, tc.password); err != nil {
			t.Errorf("enable joiner %q failed: %v", tc.want, err)
		}
	}
}

func TestDisableJoinerVariants(t *testing.T) {
	cases := []struct {
		typ   JoinerType
		eui64 string
		want  string
	}{
		{JoinerMeshCoP, "0x1122334455667788", "joiner disable meshcop 0x1122334455667788"},
		{JoinerAE, "", "joiner disableall ae"},
	}
	for _, tc := range cases {
		c, _ := newTestCommissioner(t, respondTo(t, tc.want, []string{"[done]"}))
		if err := c.DisableJoiner(tc.typ, tc.eui64); err != nil {
			t.Errorf("disable joiner %q failed: %v", tc.want, err)
		}
	}
}

func TestActiveGetCommandAndDecode(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "opdataset get active NetworkName PanId",
		[]string{`{"NetworkName":"demo","PanId":64206}`, "[done]"}))
	ds, err := c.ActiveGet([]TLVType{TLVNetworkName, TLVPanID})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ds[TLVNetworkName] != "demo" {
		t.Errorf("NetworkName = %v", ds[TLVNetworkName])
	}
	if ds[TLVPanID] != int64(0xface) {
		t.Errorf("PanId = %v (%T)", ds[TLVPanID], ds[TLVPanID])
	}
}

func TestActiveGetAllFields(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "opdataset get active",
		[]string{`{"ActiveTimestamp":{"Seconds":10,"Ticks":0,"U":0},"Channel":{"Number":19,"Page":0}}`, "[done]"}))
	ds, err := c.ActiveGet(nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ts := ds[TLVActiveTimestamp].(Timestamp); ts.Seconds != 10 || ts.U {
		t.Errorf("timestamp = %+v", ts)
	}
	if ch := ds[TLVChannel].(Channel); ch.Number != 19 || ch.Page != 0 {
		t.Errorf("channel = %+v", ch)
	}
}

func TestEnergyScanCollectsReport(t *testing.T) {
	var cmds []string
	c, _ := newTestCommissioner(t, func(line string) []string {
		cmd := executed(line)
		cmds = append(cmds, cmd)
		if strings.HasPrefix(cmd, "energy report") {
			return []string{`{"ChannelMask":[{"Masks":"001fffe0","Page":0}],"EnergyList":"a1b2c3"}`, "[done]"}
		}
		return []string{"[done]"}
	})

	report, err := c.EnergyScan(0x0007fff8, 2, 32, 100, "fdaa::2", 0)
	if err != nil {
		t.Fatalf("energy scan failed: %v", err)
	}
	if len(cmds) != 2 || cmds[0] != "energy scan 524280 2 32 100 fdaa::2" || cmds[1] != "energy report fdaa::2" {
		t.Errorf("commands = %q", cmds)
	}
	if len(report.ChannelMask) != 1 || report.ChannelMask[0].Page != 0 {
		t.Errorf("channel mask = %+v", report.ChannelMask)
	}
	if !bytes.Equal(report.EnergyList, []byte{0xa1, 0xb2, 0xc3}) {
		t.Errorf("energy list = %x", report.EnergyList)
	}
}

func TestEnergyScanNullReport(t *testing.T) {
	c, _ := newTestCommissioner(t, func(line string) []string {
		if strings.HasPrefix(executed(line), "energy report") {
			return []string{"null", "[done]"}
		}
		return []string{"[done]"}
	})
	_, err := c.EnergyScan(0x0007fff8, 2, 32, 100, "fdaa::2", 0)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want CommandError", err)
	}
}

func TestPanIDQueryConflict(t *testing.T) {
	var cmds []string
	c, _ := newTestCommissioner(t, func(line string) []string {
		cmd := executed(line)
		cmds = append(cmds, cmd)
		if strings.HasPrefix(cmd, "panid conflict") {
			return []string{"1", "[done]"}
		}
		return []string{"[done]"}
	})

	conflict, err := c.PanIDQuery(0x0007fff8, 0xface, "fdaa::2", 0)
	if err != nil {
		t.Fatalf("panid query failed: %v", err)
	}
	if !conflict {
		t.Error("conflict = false, want true")
	}
	if len(cmds) != 2 || cmds[0] != "panid query 524280 64206 fdaa::2" || cmds[1] != "panid conflict 64206" {
		t.Errorf("commands = %q", cmds)
	}
}

func TestTokenPrint(t *testing.T) {
	c, _ := newTestCommissioner(t, respondTo(t, "token print", []string{"d2045001", "[done]"}))
	token, err := c.Token()
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if !bytes.Equal(token, []byte{0xd2, 0x04, 0x50, 0x01}) {
		t.Errorf("token = %x", token)
	}
}

func TestCloseExitsAndReleasesSession(t *testing.T) {
	var sawExit bool
	c, tr := newTestCommissioner(t, func(line string) []string {
		return []string{"[done]"}
	})
	prevWrite := tr.onWrite
	tr.onWrite = func(line string) {
		if line == testCtl+" exit" {
			sawExit = true
		}
		prevWrite(line)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !sawExit {
		t.Error("controller exit never issued")
	}
	if tr.closed != 1 {
		t.Errorf("transport closed %d times, want 1", tr.closed)
	}
}
