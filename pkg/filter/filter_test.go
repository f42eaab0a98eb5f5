package filter

import (
	"net"
	"testing"

	"github.com/Minei3oat/firegex/pkg/hexcodec"
	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const servicePort = 1337

func hexRule(t *testing.T, expr string, mode Mode, caseSensitive bool) Rule {
	t.Helper()
	r, err := NewRule(hexcodec.EncodeToString([]byte(expr)), mode, caseSensitive)
	require.NoError(t, err)
	return r
}

func tcpPacket(t *testing.T, srcPort, dstPort uint16, payload string) *packet.Packet {
	t.Helper()
	raw, err := packet.Build(packet.Template{
		SrcIP:    net.ParseIP("10.0.0.1"),
		DestIP:   net.ParseIP("10.0.0.2"),
		Protocol: layers.IPProtocolTCP,
		SrcPort:  srcPort,
		DestPort: dstPort,
		Payload:  []byte(payload),
	})
	require.NoError(t, err)

	p, err := packet.Decode(packet.Raw{ID: 1, Payload: raw}, "")
	require.NoError(t, err)
	return p
}

func toServer(t *testing.T, payload string) *packet.Packet {
	return tcpPacket(t, 40000, servicePort, payload)
}

func toClient(t *testing.T, payload string) *packet.Packet {
	return tcpPacket(t, servicePort, 40000, payload)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "C", want: ModeClientToServer},
		{in: "s", want: ModeServerToClient},
		{in: "B", want: ModeBoth},
		{in: "", want: ModeBoth},
		{in: "X", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("C1666c6167")
	require.NoError(t, err)
	assert.Equal(t, []byte("flag"), r.Pattern)
	assert.Equal(t, ModeClientToServer, r.Mode)
	assert.True(t, r.CaseSensitive)
	assert.True(t, r.Blacklist)
	assert.True(t, r.Active)
	assert.Equal(t, "C1666c6167", r.String())

	r, err = ParseRule("b0414243")
	require.NoError(t, err)
	assert.Equal(t, ModeBoth, r.Mode)
	assert.False(t, r.CaseSensitive)
	assert.Equal(t, "B0414243", r.String())
}

func TestParseRuleErrors(t *testing.T) {
	_, err := ParseRule("C1")
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = ParseRule("Q1666c6167")
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = ParseRule("C2666c6167")
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = ParseRule("C1666c616")
	assert.ErrorIs(t, err, hexcodec.ErrOddLength)

	_, err = ParseRule("C1zz")
	var invalid hexcodec.InvalidByteError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, byte('z'), invalid.Byte)
}

func TestNewSetRejectsBadExpression(t *testing.T) {
	bad := hexRule(t, "(unclosed", ModeBoth, true)
	_, err := NewSet(servicePort, []Rule{bad})
	assert.ErrorIs(t, err, ErrInvalidRule)

	// Inactive rules are still validated.
	bad.Active = false
	_, err = NewSet(servicePort, []Rule{bad})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestVerdictBlacklist(t *testing.T) {
	set, err := NewSet(servicePort, []Rule{
		hexRule(t, `flag\{[a-z]+\}`, ModeServerToClient, true),
		hexRule(t, "cat /etc/passwd", ModeClientToServer, false),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	tests := []struct {
		name    string
		pkt     *packet.Packet
		verdict Verdict
		ruleID  int
	}{
		{"leak to client", toClient(t, "here: flag{abc}"), Drop, 1},
		{"flag sent by client", toServer(t, "flag{abc}"), Accept, 0},
		{"injection", toServer(t, "; CAT /etc/passwd"), Drop, 2},
		{"injection echoed", toClient(t, "cat /etc/passwd"), Accept, 0},
		{"clean", toServer(t, "GET / HTTP/1.1"), Accept, 0},
		{"other service", tcpPacket(t, 40000, 22, "flag{abc}"), Accept, 0},
		{"no payload", toClient(t, ""), Accept, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, ruleID := set.Verdict(tt.pkt)
			assert.Equal(t, tt.verdict, verdict)
			assert.Equal(t, tt.ruleID, ruleID)
		})
	}
}

func TestVerdictCaseSensitivity(t *testing.T) {
	sensitive, err := NewSet(servicePort, []Rule{hexRule(t, "flag", ModeBoth, true)})
	require.NoError(t, err)
	insensitive, err := NewSet(servicePort, []Rule{hexRule(t, "flag", ModeBoth, false)})
	require.NoError(t, err)

	pkt := toClient(t, "FLAG")
	v, _ := sensitive.Verdict(pkt)
	assert.Equal(t, Accept, v)
	v, _ = insensitive.Verdict(pkt)
	assert.Equal(t, Drop, v)
}

func TestVerdictWhitelist(t *testing.T) {
	allowed := hexRule(t, `^(GET|POST) `, ModeClientToServer, true)
	allowed.Blacklist = false

	set, err := NewSet(servicePort, []Rule{allowed})
	require.NoError(t, err)

	v, id := set.Verdict(toServer(t, "DELETE /users"))
	assert.Equal(t, Drop, v)
	assert.Equal(t, 1, id)

	v, _ = set.Verdict(toServer(t, "GET /index.html"))
	assert.Equal(t, Accept, v)

	v, _ = set.Verdict(toClient(t, "anything"))
	assert.Equal(t, Accept, v)
}

func TestVerdictSkipsInactiveRules(t *testing.T) {
	off := hexRule(t, "flag", ModeBoth, true)
	off.Active = false
	on := hexRule(t, "secret", ModeBoth, true)
	on.ID = 42

	set, err := NewSet(servicePort, []Rule{off, on})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	v, _ := set.Verdict(toClient(t, "flag"))
	assert.Equal(t, Accept, v)

	v, id := set.Verdict(toClient(t, "secret"))
	assert.Equal(t, Drop, v)
	assert.Equal(t, 42, id)
}

func TestVerdictMatchesBinaryPayload(t *testing.T) {
	r, err := NewRule("dead", ModeBoth, true)
	require.NoError(t, err)
	set, err := NewSet(servicePort, []Rule{r})
	require.NoError(t, err)

	v, _ := set.Verdict(toServer(t, "\x00\xde\xad\x00"))
	assert.Equal(t, Drop, v)
	v, _ = set.Verdict(toServer(t, "\xde\xaf"))
	assert.Equal(t, Accept, v)
}

func TestVerdictDotMatchesOneByte(t *testing.T) {
	set, err := NewSet(servicePort, []Rule{hexRule(t, "^a.b$", ModeBoth, true)})
	require.NoError(t, err)

	v, _ := set.Verdict(toServer(t, "a\xffb"))
	assert.Equal(t, Drop, v)
	v, _ = set.Verdict(toServer(t, "a\xff\xffb"))
	assert.Equal(t, Accept, v)
}

func TestLatin1(t *testing.T) {
	ascii := []byte("plain")
	assert.Equal(t, ascii, latin1(ascii))
	assert.Equal(t, []byte("a\u00ffb"), latin1([]byte("a\xffb")))
}

func TestDirectionAnyPort(t *testing.T) {
	set, err := NewSet(0, nil)
	require.NoError(t, err)

	dir, ok := set.Direction(tcpPacket(t, 1, 2, "x"))
	require.True(t, ok)
	assert.Equal(t, ClientToServer, dir)

	v, _ := set.Verdict(tcpPacket(t, 1, 2, "x"))
	assert.Equal(t, Accept, v)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "drop", Drop.String())
}
