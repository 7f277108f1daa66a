package decode

import (
	"bytes"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	gocharset "github.com/emersion/go-message/charset"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// Result holds the decoded fields of one raw message. Every field is
// best-effort: missing or undecodable input degrades to the zero value,
// never to an error.
type Result struct {
	Subject   string
	Sender    string
	Date      time.Time
	Body      string
	MessageID string
	Metadata  map[string]string
}

// Decoder turns raw message payloads into decoded text regardless of
// transfer encoding or charset declarations. It never fails: malformed
// input degrades field by field.
type Decoder struct {
	logger      *zap.Logger
	wordDecoder *mime.WordDecoder
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		wordDecoder: &mime.WordDecoder{
			CharsetReader: permissiveCharsetReader,
		},
	}
}

// permissiveCharsetReader resolves declared charsets through the go-message
// charset table; an unknown or broken charset degrades to a lossy UTF-8
// read instead of failing the whole header.
func permissiveCharsetReader(label string, input io.Reader) (io.Reader, error) {
	if r, err := gocharset.Reader(label, input); err == nil {
		return r, nil
	}
	raw, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(strings.ToValidUTF8(string(raw), "")), nil
}

// Parse decodes one raw RFC 2822/5322 payload.
func (d *Decoder) Parse(raw []byte) Result {
	res := Result{Metadata: map[string]string{}}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		entity = nil
	}
	if entity == nil {
		// not parseable as a message at all: treat the payload as the body
		d.logger.Warn("Failed to parse raw message, keeping payload as body", zap.Error(err))
		res.Body = d.DecodeBytes(raw)
		res.Date = time.Now()
		return res
	}

	res.Subject = d.DecodeHeader(entity.Header.Get("Subject"))
	res.Sender = d.DecodeHeader(entity.Header.Get("From"))
	res.MessageID = strings.TrimSpace(entity.Header.Get("Message-Id"))
	res.Date = d.ParseDate(entity.Header.Get("Date"))
	res.Body = d.extractBody(entity)
	res.Metadata = d.extractMetadata(entity)

	return res
}

// DecodeHeader decodes a possibly RFC 2047 encoded header value. A header
// may hold several differently-encoded segments; each is decoded with its
// declared charset, degrading per segment. Malformed input comes back as-is.
func (d *Decoder) DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := d.wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

type decodeStep struct {
	name string
	fn   func([]byte) (string, bool)
}

// bodySteps is the ordered decode chain: first success wins.
var bodySteps = []decodeStep{
	{"utf-8", func(b []byte) (string, bool) {
		if utf8.Valid(b) {
			return string(b), true
		}
		return "", false
	}},
	{"latin-1", func(b []byte) (string, bool) {
		s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		return string(s), true
	}},
	{"utf-8-lossy", func(b []byte) (string, bool) {
		return strings.ToValidUTF8(string(b), ""), true
	}},
}

// DecodeBytes runs the byte-to-text decode chain.
func (d *Decoder) DecodeBytes(b []byte) string {
	for _, step := range bodySteps {
		if s, ok := step.fn(b); ok {
			return s
		}
	}
	d.logger.Warn("All body decode attempts failed, storing empty body")
	return ""
}

// extractBody picks the first text/plain part of a multipart message, or
// the single payload otherwise.
func (d *Decoder) extractBody(entity *message.Entity) string {
	if mr := entity.MultipartReader(); mr != nil {
		if body, ok := d.firstPlainPart(mr); ok {
			return body
		}
		return ""
	}

	b, err := io.ReadAll(entity.Body)
	if err != nil {
		d.logger.Warn("Failed to read message body", zap.Error(err))
		return ""
	}
	return d.DecodeBytes(b)
}

func (d *Decoder) firstPlainPart(mr message.MultipartReader) (string, bool) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", false
		}
		if err != nil && !message.IsUnknownCharset(err) {
			d.logger.Warn("Failed to read multipart part, skipping rest", zap.Error(err))
			return "", false
		}

		mediaType, _, _ := part.Header.ContentType()
		switch {
		case mediaType == "text/plain":
			b, err := io.ReadAll(part.Body)
			if err != nil {
				d.logger.Warn("Failed to read text part", zap.Error(err))
				continue
			}
			return d.DecodeBytes(b), true
		case strings.HasPrefix(mediaType, "multipart/"):
			if nested := part.MultipartReader(); nested != nil {
				if body, ok := d.firstPlainPart(nested); ok {
					return body, true
				}
			}
		}
	}
}

var tlsVersionRe = regexp.MustCompile(`\(version=(.+?)\s`)

// extractMetadata scrapes delivery metadata the UI surfaces next to a
// message: forwarding relay, DKIM signer, transport security.
func (d *Decoder) extractMetadata(entity *message.Entity) map[string]string {
	meta := map[string]string{}

	if v := d.DecodeHeader(entity.Header.Get("Mailed-By")); v != "" {
		meta["mailed_by"] = v
	}
	if v := d.DecodeHeader(entity.Header.Get("Signed-By")); v != "" {
		meta["signed_by"] = v
	}

	fields := entity.Header.FieldsByKey("Received")
	for fields.Next() {
		value := fields.Value()
		if !strings.Contains(value, "TLS") && !strings.Contains(value, "SSL") {
			continue
		}
		if m := tlsVersionRe.FindStringSubmatch(value); m != nil {
			meta["security"] = "Encrypted (" + m[1] + ")"
		} else {
			meta["security"] = "Encrypted (TLS/SSL)"
		}
		break
	}

	return meta
}
