package receiver

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rtu-receiver/internal/jsonl"
	"rtu-receiver/internal/protocol"
)

// Receiver-side failures reported on the errors stream next to decode stages.
const (
	StageTransportQueue protocol.Stage  = "transport_queue"
	ReasonQueueOverflow protocol.Reason = "queue_overflow"
)

// Datagram is one received UDP payload.
type Datagram struct {
	Data       []byte
	Source     jsonl.Source
	ReceivedAt time.Time
}

// Handler decodes and records one datagram at a time. It holds no per-call
// state and may be shared by several workers.
type Handler struct {
	Sink          jsonl.Sink
	Decoder       protocol.Decoder
	DecodeEnabled bool
	Status        *Status
	Log           zerolog.Logger

	// NewID returns the rx_id linking the records of one datagram.
	NewID func() string
}

func NewHandler(sink jsonl.Sink, keys protocol.KeyResolver, decode bool, status *Status, log zerolog.Logger) *Handler {
	return &Handler{
		Sink:          sink,
		Decoder:       protocol.Decoder{Keys: keys},
		DecodeEnabled: decode,
		Status:        status,
		Log:           log,
	}
}

// Handle always writes the raw record. With decoding enabled it then writes
// either a decoded record followed by one error record per non-fatal issue,
// or a single error record for a fatal failure.
func (h *Handler) Handle(d Datagram) error {
	meta, log := h.begin(d)

	var errs []error
	if err := h.Sink.WriteRaw(jsonl.NewRawRecord(meta, d.Data)); err != nil {
		errs = append(errs, fmt.Errorf("write raw: %w", err))
	}
	if !h.DecodeEnabled {
		return h.sinkResult(log, errs)
	}

	out, err := h.Decoder.Decode(d.Data)
	if err != nil {
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			return fmt.Errorf("decode: %w", err)
		}
		h.Status.markFatal(perr.Reason)
		log.Warn().Str("stage", string(perr.Stage)).Str("reason", string(perr.Reason)).
			Str("imei", perr.IMEI).Int("len", len(d.Data)).Msg("decode failed")
		if err := h.Sink.WriteError(jsonl.NewErrorRecord(meta, d.Data, perr)); err != nil {
			errs = append(errs, fmt.Errorf("write error: %w", err))
		}
		return h.sinkResult(log, errs)
	}

	h.Status.markDecoded(out)
	log.Debug().Str("imei", out.IMEI).Int("records", len(out.Records)).
		Int("padding_len", out.PaddingLen).Int("issues", len(out.Issues)).Msg("decoded")
	if err := h.Sink.WriteDecoded(jsonl.DecodedRecord{Meta: meta, Outcome: out}); err != nil {
		errs = append(errs, fmt.Errorf("write decoded: %w", err))
	}
	for _, issue := range out.Issues {
		log.Info().Str("imei", out.IMEI).Str("reason", string(issue.Reason)).Msg("non-fatal decode issue")
		if err := h.Sink.WriteError(jsonl.NewIssueRecord(meta, d.Data, out.IMEI, issue)); err != nil {
			errs = append(errs, fmt.Errorf("write error: %w", err))
		}
	}
	return h.sinkResult(log, errs)
}

// Overflow records a datagram that was dropped before decoding because the
// work queue already held maxPending datagrams.
func (h *Handler) Overflow(d Datagram, maxPending int) error {
	meta, log := h.begin(d)
	rec := jsonl.ErrorRecord{
		Meta:     meta,
		Stage:    StageTransportQueue,
		Reason:   ReasonQueueOverflow,
		Datagram: d.Data,
		Details:  protocol.Details{"max_pending": maxPending},
	}
	if err := h.Sink.WriteError(rec); err != nil {
		return h.sinkResult(log, []error{fmt.Errorf("write error: %w", err)})
	}
	return nil
}

func (h *Handler) begin(d Datagram) (jsonl.Meta, zerolog.Logger) {
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now()
	}
	newID := h.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	meta := jsonl.NewMeta(d.ReceivedAt, newID(), d.Source)
	log := h.Log.With().Str("rx_id", meta.RxID).Str("src", fmt.Sprintf("%s:%d", d.Source.IP, d.Source.Port)).Logger()
	return meta, log
}

func (h *Handler) sinkResult(log zerolog.Logger, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	h.Status.markSinkError()
	log.Error().Err(err).Msg("output write failed")
	return err
}
