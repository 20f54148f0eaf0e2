package sanitize_test

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/bridgearchive/bridgesan/internal/bsantest"
	"github.com/bridgearchive/bridgesan/internal/sanitize"
	"github.com/bridgearchive/bridgesan/internal/scrub"
	"github.com/bridgearchive/bridgesan/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testAuthority is the bridge authority fingerprint used in tests.
const testAuthority = "4A0CCD2DDC7995083D73F5D667100C8A5831F16D"

// testPubHint is the publication hint derived from the test snapshot name.
var testPubHint = time.Date(2016, 6, 30, 23, 40, 28, 0, time.UTC)

// testSink is a [sanitize.Sink] for tests.
type testSink struct {
	results []*sanitize.Result
}

// Write implements the [sanitize.Sink] interface for *testSink.
func (s *testSink) Write(_ context.Context, res *sanitize.Result) (err error) {
	s.results = append(s.results, res)

	return nil
}

// testMetrics is a [sanitize.Metrics] for tests counting drops by reason.
type testMetrics struct {
	sanitized map[sanitize.Kind]int
	dropped   map[string]int
}

// newTestMetrics returns a properly initialized *testMetrics.
func newTestMetrics() (m *testMetrics) {
	return &testMetrics{
		sanitized: map[sanitize.Kind]int{},
		dropped:   map[string]int{},
	}
}

// IncrementSanitized implements the [sanitize.Metrics] interface for
// *testMetrics.
func (m *testMetrics) IncrementSanitized(_ context.Context, kind sanitize.Kind) {
	m.sanitized[kind]++
}

// IncrementDropped implements the [sanitize.Metrics] interface for
// *testMetrics.
func (m *testMetrics) IncrementDropped(_ context.Context, _ sanitize.Kind, reason string) {
	m.dropped[reason]++
}

// newRouter returns a router in fixed mode together with its sink and
// metrics doubles.
func newRouter(t *testing.T) (r *sanitize.Router, snk *testSink, m *testMetrics) {
	t.Helper()

	return newRouterScrubbing(t, scrub.Fixed{})
}

// newRouterScrubbing returns a router using scrubber together with its sink
// and metrics doubles.
func newRouterScrubbing(
	t *testing.T,
	scrubber scrub.Interface,
) (r *sanitize.Router, snk *testSink, m *testMetrics) {
	t.Helper()

	snk = &testSink{}
	m = newTestMetrics()
	r = sanitize.NewRouter(&sanitize.RouterConfig{
		Logger:   slogutil.NewDiscardLogger(),
		ErrColl:  bsantest.NewErrorCollector(),
		Metrics:  m,
		Scrubber: scrubber,
		Sink:     snk,
	})

	return r, snk, m
}

// testServerDesc is a raw bridge server descriptor as collected from a
// bridge authority, modulo the truncated key material.
const testServerDesc = `@purpose bridge
router MeekGoogle 198.50.200.131 8008 0 0
or-address [2:5:2:5:2:5:2:5]:25
platform Tor 0.2.7.6 on Linux
protocols Link 1 2 Circuit 1
published 2016-06-30 21:43:52
fingerprint 46D4 A711 97B8 FA51 5A82 6C6B 017C 522F E264 655B
uptime 339587
bandwidth 3040870 5242880 56583
extra-info-digest 6D03E80568DEFA102968D144CB35FFA6E3355B8A cy/LwP7nxukmmcT1+UnDg4qh0yKbjVUYKhGL8VksoJA
onion-key
-----BEGIN RSA PUBLIC KEY-----
MIGJAoGBALD6Dbj1okBj4mmz/sCgIGFJk/CTWlMsT3CS1kP7Q2gAaDewEbo1+me3
X5f3QpvZ9Yh2l5Q+btU4a/Yib3pg/KhyX96Z5zrvz9dGPPXGORpwawMIH7Aa+jtp
v2l0misfGCloIamfI5dzayTu9gR4emuKm34tipkfIz6hLkO7xW1nAgMBAAE=
-----END RSA PUBLIC KEY-----
signing-key
-----BEGIN RSA PUBLIC KEY-----
MIGJAoGBAM6sVv1ASHBuLe8l3+cF4xATk1n/CqNRqML0Gra0S9UaBnKakm9tk7Vw
PJifL3B318lRDjAE2wTVyM+437TLaROLNBrQOF2apjgJYH661vPFG5Uw6+8CXv6w
tHeXU1pvc/E7SA0IpUjm80z0HhSA3oGwuP4IEB1U1IxxiJNFaBk7AgMBAAE=
-----END RSA PUBLIC KEY-----
hidden-service-dir
contact jvictors at jessevictors com, PGP 0xC20BEC80
ntor-onion-key q8Qg9PaoBm59j7cEJcOrzTUazVt3D8Ax4L3oaO8PaxU=
reject 198.50.200.131:*
reject *:*
router-signature
-----BEGIN SIGNATURE-----
vKWlPhEDoRHOKgDNXE07HFl39b4SmGUDo8DStSzzza+CKVw2RnV41wYBpjRJvu2Q
VcQb00bfqWP/DK38GmVMgzKRZ7e1k2TpzaeL3ssD3gS6wJPzbIbcL++yUhtPukk/
tWJ53g/ru8Hiy+h9Wa5gI+Eog/z4hj36GBiaTXJoG3M=
-----END SIGNATURE-----
`

func TestRouter_Process_serverFixed(t *testing.T) {
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(testServerDesc), testPubHint, testAuthority)

	require.Len(t, snk.results, 1)
	res := snk.results[0]

	assert.Equal(t, sanitize.KindServer, res.Kind)
	assert.Equal(t, time.Date(2016, 6, 30, 21, 43, 52, 0, time.UTC), res.Published)
	assert.Equal(t, 1, m.sanitized[sanitize.KindServer])

	lines := strings.Split(strings.TrimSuffix(string(res.Bytes), "\n"), "\n")

	wantDigest := serverRangeDigestSHA1(t, testServerDesc)
	want := []string{
		"@type bridge-server-descriptor 1.2",
		"router MeekGoogle 127.0.0.1 1 0 0",
		"or-address [fd9f:2e19:3bcf::]:1",
		"platform Tor 0.2.7.6 on Linux",
		"protocols Link 1 2 Circuit 1",
		"published 2016-06-30 21:43:52",
		"fingerprint 88F7 4584 0F47 CE0C 6A4F E61D 8279 50B0 6F9E 4534",
		"uptime 339587",
		"bandwidth 3040870 5242880 56583",
		"extra-info-digest B026CF0F81712D94BBF1362294882688DF247887 " +
			"/XWPeILeik+uTGaKL3pnUeQfYS87SfjKVkwTiCmbqi0",
		"hidden-service-dir",
		"contact somebody",
		"ntor-onion-key q8Qg9PaoBm59j7cEJcOrzTUazVt3D8Ax4L3oaO8PaxU=",
		"reject 127.0.0.1:*",
		"reject *:*",
		"router-digest " + strings.ToUpper(wantDigest),
	}
	assert.Equal(t, want, lines)

	assert.Equal(t, wantDigest, res.SHA1Hex)

	// The anti-enumeration invariant: nothing identifying survives.
	for _, leak := range []string{"198.50.200.131", "jvictors", "46D4", "MIGJ", "BEGIN"} {
		assert.NotContains(t, string(res.Bytes), leak)
	}
}

func TestRouter_Process_serverHashed(t *testing.T) {
	store, err := secrets.New(&secrets.Config{
		Logger:          slogutil.NewDiscardLogger(),
		Clock:           bsantest.ConstClock(time.Date(2016, 7, 15, 0, 0, 0, 0, time.UTC)),
		Metrics:         secrets.EmptyMetrics{},
		FilePath:        filepath.Join(t.TempDir(), "keys"),
		RetentionMonths: 24,
	})
	require.NoError(t, err)

	r, snk, _ := newRouterScrubbing(t, scrub.NewKeyed(store))

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(testServerDesc), testPubHint, testAuthority)

	require.Len(t, snk.results, 1)
	lines := strings.Split(string(snk.results[0].Bytes), "\n")

	routerLine := lines[1]
	toks := strings.Fields(routerLine)
	require.Len(t, toks, 6)

	assert.True(t, strings.HasPrefix(toks[2], "10."), "router line %q", routerLine)
	assert.NotEqual(t, "8008", toks[3])
	assert.Equal(t, "0", toks[4])
	assert.Equal(t, "0", toks[5])

	orLine := lines[2]
	assert.True(t, strings.HasPrefix(orLine, "or-address [fd9f:2e19:3bcf::"), "got %q", orLine)

	// A second run backed by the same store yields the same bytes.
	r2, snk2, _ := newRouterScrubbing(t, scrub.NewKeyed(store))
	r2.Process(ctx, []byte(testServerDesc), testPubHint, testAuthority)

	require.Len(t, snk2.results, 1)
	assert.Equal(t, snk.results[0].Bytes, snk2.results[0].Bytes)
}

func TestRouter_Process_serverEd25519(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(0xA0 + i)
	}

	raw := serverDescWithCert(key, "")
	r, snk, _ := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(raw), testPubHint, testAuthority)

	require.Len(t, snk.results, 1)
	out := string(snk.results[0].Bytes)

	keySum := sha256.Sum256(key)
	wantMK := "master-key-ed25519 " + base64.RawStdEncoding.EncodeToString(keySum[:])
	assert.Contains(t, out, wantMK+"\n")

	wantSHA256 := serverRangeDigestSHA256(t, raw)
	assert.Contains(t, out, "router-digest-sha256 "+wantSHA256+"\n")

	// The certificate material itself must not survive.
	assert.NotContains(t, out, "ED25519 CERT")
}

func TestRouter_Process_serverEd25519Mismatch(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(0xA0 + i)
	}

	otherKey := make([]byte, 32)
	otherKey[0] = 0x01

	raw := serverDescWithCert(key, base64.RawStdEncoding.EncodeToString(otherKey))
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(raw), testPubHint, testAuthority)

	assert.Empty(t, snk.results)
	assert.Equal(t, 1, m.dropped[sanitize.DropReasonCrypto])
}

func TestRouter_Process_serverUnknownLine(t *testing.T) {
	raw := strings.Replace(testServerDesc, "uptime 339587\n", "uptime 339587\nfrobnicate 1\n", 1)
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(raw), testPubHint, testAuthority)

	assert.Empty(t, snk.results)
	assert.Equal(t, 1, m.dropped[sanitize.DropReasonParse])
}

// testExtraInfo is a raw bridge extra-info descriptor.
const testExtraInfo = `@purpose bridge
extra-info MeekGoogle 46D4A71197B8FA515A826C6B017C522FE264655B
published 2016-06-30 21:43:52
write-history 2016-06-30 18:40:48 (14400 s) 415744,497664,359424,410624
read-history 2016-06-30 18:40:48 (14400 s) 4789248,6237184,4473856,5039104
geoip-db-digest 09A0E093100B279AD9CFF47A67B13A21C6E1483F
geoip6-db-digest E983833985E4BCA34CEF611B2DF51942D188E638
dirreq-stats-end 2016-06-30 08:41:33 (86400 s)
dirreq-v3-ips us=8
bridge-stats-end 2016-06-30 08:41:43 (86400 s)
bridge-ips us=24,gb=8
transport meek 198.50.200.131:8008
transport-info fingerprint-and-padding-args
router-signature
-----BEGIN SIGNATURE-----
vKWlPhEDoRHOKgDNXE07HFl39b4SmGUDo8DStSzzza+CKVw2RnV41wYBpjRJvu2Q
VcQb00bfqWP/DK38GmVMgzKRZ7e1k2TpzaeL3ssD3gS6wJPzbIbcL++yUhtPukk/
tWJ53g/ru8Hiy+h9Wa5gI+Eog/z4hj36GBiaTXJoG3M=
-----END SIGNATURE-----
`

func TestRouter_Process_extraInfo(t *testing.T) {
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(testExtraInfo), testPubHint, testAuthority)

	require.Len(t, snk.results, 1)
	res := snk.results[0]

	assert.Equal(t, sanitize.KindExtraInfo, res.Kind)
	assert.Equal(t, 1, m.sanitized[sanitize.KindExtraInfo])

	lines := strings.Split(strings.TrimSuffix(string(res.Bytes), "\n"), "\n")

	wantDigest := extraInfoRangeDigestSHA1(t, testExtraInfo)
	want := []string{
		"@type bridge-extra-info 1.3",
		"extra-info MeekGoogle 88F745840F47CE0C6A4FE61D827950B06F9E4534",
		"published 2016-06-30 21:43:52",
		"write-history 2016-06-30 18:40:48 (14400 s) 415744,497664,359424,410624",
		"read-history 2016-06-30 18:40:48 (14400 s) 4789248,6237184,4473856,5039104",
		"geoip-db-digest 09A0E093100B279AD9CFF47A67B13A21C6E1483F",
		"geoip6-db-digest E983833985E4BCA34CEF611B2DF51942D188E638",
		"dirreq-stats-end 2016-06-30 08:41:33 (86400 s)",
		"dirreq-v3-ips us=8",
		"bridge-stats-end 2016-06-30 08:41:43 (86400 s)",
		"bridge-ips us=24,gb=8",
		"transport meek",
		"router-digest " + strings.ToUpper(wantDigest),
	}
	assert.Equal(t, want, lines)

	assert.Equal(t, wantDigest, res.SHA1Hex)
	assert.NotContains(t, string(res.Bytes), "198.50.200.131")
	assert.NotContains(t, string(res.Bytes), "transport-info")
}

func TestRouter_Process_extraInfoShortLine(t *testing.T) {
	raw := strings.Replace(
		testExtraInfo,
		"extra-info MeekGoogle 46D4A71197B8FA515A826C6B017C522FE264655B\n",
		"extra-info MeekGoogle\n",
		1,
	)

	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(raw), testPubHint, testAuthority)

	assert.Empty(t, snk.results)
	assert.Equal(t, 1, m.dropped[sanitize.DropReasonParse])
}

// testStatus is a raw bridge network status with a single entry and no
// published line of its own.
const testStatus = `flag-thresholds stable-uptime=613624 stable-mtbf=2488 fast-speed=21000
r MeekGoogle RtSnEZe4+lFagmxrAXxSL+JkZVs g+M7Ww+lGKmv6NW9GRmvzLOiR0Y 2016-06-30 21:43:52 198.50.200.131 8008 0
s Running Valid
w Bandwidth=56
p reject 1-65535
`

func TestRouter_Process_status(t *testing.T) {
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(testStatus), testPubHint, testAuthority)

	require.Len(t, snk.results, 1)
	res := snk.results[0]

	assert.Equal(t, sanitize.KindStatus, res.Kind)
	assert.Equal(t, testPubHint, res.Published)
	assert.Equal(t, testAuthority, res.Authority)
	assert.Equal(t, 1, m.sanitized[sanitize.KindStatus])

	want := []string{
		"@type bridge-network-status 1.2",
		"published 2016-06-30 23:40:28",
		"fingerprint " + testAuthority,
		"flag-thresholds stable-uptime=613624 stable-mtbf=2488 fast-speed=21000",
		"r MeekGoogle iPdFhA9HzgxqT+YdgnlQsG+eRTQ tpIv9cBFgU30vLcqDWyUF8/72Ao " +
			"2016-06-30 21:43:52 127.0.0.1 1 0",
		"s Running Valid",
		"w Bandwidth=56",
		"p reject 1-65535",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSuffix(string(res.Bytes), "\n"), "\n"))
}

func TestRouter_Process_statusSorted(t *testing.T) {
	// Two entries whose input order is the reverse of the hashed identity
	// order.
	idA := strings.Repeat("A", 27)
	idB := strings.Repeat("B", 27)

	entry := "r Nick%s %s g+M7Ww+lGKmv6NW9GRmvzLOiR0Y 2016-06-30 21:43:52 198.50.200.131 %d 0\n"
	raw := fmt.Sprintf(entry, "One", idA, 1001) + fmt.Sprintf(entry, "Two", idB, 1002)

	r, snk, _ := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(raw), testPubHint, testAuthority)

	require.Len(t, snk.results, 1)

	var rLines []string
	for _, line := range strings.Split(string(snk.results[0].Bytes), "\n") {
		if strings.HasPrefix(line, "r ") {
			rLines = append(rLines, line)
		}
	}
	require.Len(t, rLines, 2)

	// The emitted order must follow the hashed identity keys, regardless of
	// the input order.
	gotFirst := hashedKeyOfTrunc(t, strings.Fields(rLines[0])[1])
	gotSecond := hashedKeyOfTrunc(t, strings.Fields(rLines[1])[1])
	assert.Less(t, gotFirst, gotSecond)

	wantKeys := []string{hashedIDKey(t, idA), hashedIDKey(t, idB)}
	slices.Sort(wantKeys)
	assert.True(t, strings.HasPrefix(wantKeys[0], gotFirst))
	assert.True(t, strings.HasPrefix(wantKeys[1], gotSecond))
}

func TestRouter_Process_statusUnknownLine(t *testing.T) {
	raw := testStatus + "v Tor 0.2.7.6\n"
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, []byte(raw), testPubHint, testAuthority)

	assert.Empty(t, snk.results)
	assert.Equal(t, 1, m.dropped[sanitize.DropReasonParse])
}

func TestRouter_Process_empty(t *testing.T) {
	r, snk, m := newRouter(t)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	r.Process(ctx, nil, testPubHint, testAuthority)
	r.Process(ctx, []byte("@type something 1.0\n"), testPubHint, testAuthority)

	assert.Empty(t, snk.results)
	assert.Empty(t, m.sanitized)
	assert.Empty(t, m.dropped)
}

// serverRangeDigestSHA1 computes the expected SHA-1 artifact digest of a raw
// server descriptor independently of the implementation under test.
func serverRangeDigestSHA1(t *testing.T, raw string) (digest string) {
	t.Helper()

	return rangeDigestSHA1(t, raw, "\nrouter ")
}

// extraInfoRangeDigestSHA1 is like [serverRangeDigestSHA1] for extra-info
// descriptors.
func extraInfoRangeDigestSHA1(t *testing.T, raw string) (digest string) {
	t.Helper()

	return rangeDigestSHA1(t, raw, "\nextra-info ")
}

// rangeDigestSHA1 computes the double SHA-1 of the canonical descriptor
// range.
func rangeDigestSHA1(t *testing.T, raw, startMarker string) (digest string) {
	t.Helper()

	start := strings.Index(raw, startMarker)
	require.GreaterOrEqual(t, start, 0)

	const endMarker = "\nrouter-signature\n"
	end := strings.Index(raw, endMarker)
	require.GreaterOrEqual(t, end, 0)

	r := raw[start+1 : end+len(endMarker)]
	inner := sha1.Sum([]byte(r))
	outer := sha1.Sum(inner[:])

	return hex.EncodeToString(outer[:])
}

// serverRangeDigestSHA256 computes the expected SHA-256 artifact digest of a
// raw server descriptor independently of the implementation under test.
func serverRangeDigestSHA256(t *testing.T, raw string) (digest string) {
	t.Helper()

	start := strings.Index(raw, "\nrouter ")
	require.GreaterOrEqual(t, start, 0)

	const endMarker = "\n-----END SIGNATURE-----\n"
	end := strings.Index(raw, endMarker)
	require.GreaterOrEqual(t, end, 0)

	r := raw[start+1 : end+len(endMarker)]
	inner := sha256.Sum256([]byte(r))
	outer := sha256.Sum256(inner[:])

	return base64.RawStdEncoding.EncodeToString(outer[:])
}

// serverDescWithCert returns the test server descriptor with an
// identity-ed25519 certificate certifying key and, if explicitMK is not
// empty, an explicit master-key-ed25519 line.
func serverDescWithCert(key []byte, explicitMK string) (raw string) {
	cert := make([]byte, 40)
	cert[0] = 0x01
	cert[1] = 0x04
	cert[6] = 0x01
	cert[39] = 1
	cert = append(cert, 0x00, 0x20, 0x04, 0x00)
	cert = append(cert, key...)

	certB64 := base64.StdEncoding.EncodeToString(cert)

	b := &strings.Builder{}
	b.WriteString("identity-ed25519\n-----BEGIN ED25519 CERT-----\n")
	for len(certB64) > 64 {
		b.WriteString(certB64[:64] + "\n")
		certB64 = certB64[64:]
	}
	b.WriteString(certB64 + "\n-----END ED25519 CERT-----\n")

	if explicitMK != "" {
		b.WriteString("master-key-ed25519 " + explicitMK + "\n")
	}

	return strings.Replace(
		testServerDesc,
		"platform Tor 0.2.7.6 on Linux\n",
		b.String()+"platform Tor 0.2.7.6 on Linux\n",
		1,
	)
}

// hashedIDKey returns the lowercase hex SHA-1 of the identity encoded in the
// unpadded base64 id.
func hashedIDKey(t *testing.T, id string) (key string) {
	t.Helper()

	idBytes, err := base64.RawStdEncoding.DecodeString(id)
	require.NoError(t, err)

	sum := sha1.Sum(idBytes)

	return hex.EncodeToString(sum[:])
}

// hashedKeyOfTrunc returns the sortable hex form of a truncated base64
// hashed identity from an emitted r line.
func hashedKeyOfTrunc(t *testing.T, trunc string) (key string) {
	t.Helper()

	idBytes, err := base64.RawStdEncoding.DecodeString(trunc)
	require.NoError(t, err)

	return hex.EncodeToString(idBytes)
}
