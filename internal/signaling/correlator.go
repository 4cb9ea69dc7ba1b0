// Package signaling learns RTP endpoints from SIP/SDP exchanges so media
// packets can be tied back to the frame that set them up.
package signaling

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/patrickmn/go-cache"
	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/metrics"
)

const (
	defaultSessionTTL = 10 * time.Minute
	defaultCleanup    = time.Minute
)

// Media is what signaling announced about an RTP endpoint.
type Media struct {
	SetupFrame   uint64
	CallID       string
	PayloadNames map[uint8]string // dynamic payload types from a=rtpmap
	Rates        map[uint8]uint32
}

// Config configures a Correlator.
type Config struct {
	Ports      []uint16 // SIP ports; empty means any port
	SessionTTL time.Duration
}

// Correlator watches SIP traffic and remembers the media endpoints each
// SDP body announces. It is not safe for concurrent use.
type Correlator struct {
	parser *parser.PacketParser
	ports  map[uint16]struct{}
	calls  *cache.Cache // Call-ID → setup frame
	media  *cache.Cache // endpoint → *Media
	logger log.Logger
}

func NewCorrelator(cfg Config) *Correlator {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	ports := make(map[uint16]struct{}, len(cfg.Ports))
	for _, p := range cfg.Ports {
		ports[p] = struct{}{}
	}

	logger := log.GetLogger().WithField("component", "signaling")
	entry, ok := logger.GetEntry().(*logrus.Entry)
	if !ok {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Correlator{
		parser: parser.NewPacketParser(&loggerAdapter{logger: entry}),
		ports:  ports,
		calls:  cache.New(ttl, defaultCleanup),
		media:  cache.New(ttl, defaultCleanup),
		logger: logger,
	}
}

// isSIPPort reports whether either port of pkt is a configured SIP port.
func (c *Correlator) isSIPPort(pkt *core.DecodedPacket) bool {
	if len(c.ports) == 0 {
		return true
	}
	_, src := c.ports[pkt.Transport.SrcPort]
	_, dst := c.ports[pkt.Transport.DstPort]
	return src || dst
}

// Observe inspects a decoded frame. It reports whether the frame carried
// a SIP message.
func (c *Correlator) Observe(pkt *core.DecodedPacket) bool {
	if len(pkt.Payload) == 0 || !c.isSIPPort(pkt) || !looksLikeSIP(pkt.Payload) {
		return false
	}

	msg, err := c.parser.ParseMessage(pkt.Payload)
	if err != nil {
		if c.logger.IsDebugEnabled() {
			c.logger.WithError(err).WithField("frame", pkt.Frame).Debug("failed to parse SIP message")
		}
		return false
	}

	callIDHeader, ok := msg.CallID()
	if !ok || callIDHeader == nil {
		return true
	}
	callID := callIDHeader.Value()

	if req, ok := msg.(sip.Request); ok && req.Method() == sip.BYE {
		c.calls.Delete(callID)
		return true
	}

	body := msg.Body()
	if body == "" {
		return true
	}
	if err := c.learn(callID, pkt.Frame, body); err != nil && c.logger.IsDebugEnabled() {
		c.logger.WithError(err).WithField("call-id", callID).Debug("ignoring SIP body")
	}
	return true
}

// learn registers the media endpoints of an SDP body. The setup frame of
// a call is the first frame that carried SDP for its Call-ID.
func (c *Correlator) learn(callID string, frame uint64, body string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(body)); err != nil {
		return fmt.Errorf("sdp: %w", err)
	}

	setup := frame
	if v, ok := c.calls.Get(callID); ok {
		setup = v.(uint64)
	} else {
		c.calls.SetDefault(callID, frame)
		metrics.SignalingSessionsTotal.Inc()
	}

	session := connectionAddr(desc.ConnectionInformation)
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Port.Value <= 0 || md.MediaName.Port.Value > 0xFFFF {
			continue
		}
		addr := connectionAddr(md.ConnectionInformation)
		if !addr.IsValid() {
			addr = session
		}
		if !addr.IsValid() {
			continue
		}

		m := &Media{
			SetupFrame:   setup,
			CallID:       callID,
			PayloadNames: make(map[uint8]string),
			Rates:        make(map[uint8]uint32),
		}
		for _, f := range md.MediaName.Formats {
			var pt uint8
			if _, err := fmt.Sscanf(f, "%d", &pt); err != nil {
				continue
			}
			codec, err := desc.GetCodecForPayloadType(pt)
			if err != nil || codec.Name == "" {
				continue
			}
			m.PayloadNames[pt] = codec.Name
			m.Rates[pt] = codec.ClockRate
		}

		ep := netip.AddrPortFrom(addr, uint16(md.MediaName.Port.Value))
		c.media.SetDefault(ep.String(), m)
		if c.logger.IsDebugEnabled() {
			c.logger.WithFields(map[string]interface{}{
				"call-id":  callID,
				"endpoint": ep.String(),
				"setup":    setup,
			}).Debug("registered media endpoint")
		}
	}
	return nil
}

func connectionAddr(ci *sdp.ConnectionInformation) netip.Addr {
	if ci == nil || ci.Address == nil {
		return netip.Addr{}
	}
	addr, err := netip.ParseAddr(ci.Address.Address)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// Lookup returns the media announced for either endpoint of a flow,
// destination first.
func (c *Correlator) Lookup(src, dst netip.AddrPort) (Media, bool) {
	for _, ep := range []netip.AddrPort{dst, src} {
		ep = netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port())
		if v, ok := c.media.Get(ep.String()); ok {
			return *v.(*Media), true
		}
	}
	return Media{}, false
}

// Len is the number of registered media endpoints.
func (c *Correlator) Len() int {
	return c.media.ItemCount()
}

// Reset forgets every call and endpoint.
func (c *Correlator) Reset() {
	c.calls.Flush()
	c.media.Flush()
}

var sipMethods = []string{"INVITE ", "ACK ", "BYE ", "CANCEL ", "OPTIONS ", "REGISTER ", "PRACK ", "UPDATE ", "INFO ", "SUBSCRIBE ", "NOTIFY ", "REFER ", "MESSAGE ", "PUBLISH "}

// looksLikeSIP checks the start line before handing data to the parser.
func looksLikeSIP(payload []byte) bool {
	head := payload
	if len(head) > 16 {
		head = head[:16]
	}
	s := string(head)
	if strings.HasPrefix(s, "SIP/2.0 ") {
		return true
	}
	for _, m := range sipMethods {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}
