package kcoro

import "context"

// ZDesc is the value carried by zero-copy descriptor channels: an
// address/length/region/offset tuple, never the payload itself.
type ZDesc struct {
	Addr     uintptr
	Len      int
	RegionID uint64
	Offset   int
	Flags    uint32
}

// ByteSize reports the descriptor's payload length for metrics purposes,
// satisfying the sizedValue capability so channel metrics bypass
// unsafe.Sizeof(ZDesc{}).
func (d ZDesc) ByteSize() int { return d.Len }

// FormatMode selects how a format-policy mismatch is handled at send time.
type FormatMode int

const (
	ModeStrict FormatMode = iota
	ModeAdvisory
)

// MetaField is one bit of the format-policy field mask.
type MetaField uint8

const (
	FieldDType MetaField = 1 << iota
	FieldElemBits
	FieldAlign
	FieldStride
	FieldDims
	FieldLayout
)

// FormatPolicy is the optional check a ZRef channel applies to the
// destination region's metadata before accepting a send.
type FormatPolicy struct {
	Required RegionMeta
	Mask     MetaField
	Mode     FormatMode
}

// Matches reports whether meta satisfies p (alignment is "at least
// required"; every other masked field must match exactly). An unset mask
// bit is always satisfied.
func (p FormatPolicy) Matches(meta RegionMeta) bool {
	if p.Mask&FieldDType != 0 && meta.DType != p.Required.DType {
		return false
	}
	if p.Mask&FieldElemBits != 0 && meta.ElemBits != p.Required.ElemBits {
		return false
	}
	if p.Mask&FieldAlign != 0 && meta.Align < p.Required.Align {
		return false
	}
	if p.Mask&FieldStride != 0 && meta.Stride != p.Required.Stride {
		return false
	}
	if p.Mask&FieldDims != 0 {
		if meta.NumDims != p.Required.NumDims {
			return false
		}
		for i := 0; i < meta.NumDims; i++ {
			if meta.Dims[i] != p.Required.Dims[i] {
				return false
			}
		}
	}
	if p.Mask&FieldLayout != 0 && meta.Layout != p.Required.Layout {
		return false
	}
	return true
}

// checkPolicy resolves a ZDesc against an optional format policy using
// the given registry; a nil policy always passes. ErrInvalidFormat is
// returned only in Strict mode on a mismatch.
func checkPolicy(reg *RegionRegistry, d ZDesc, policy *FormatPolicy) error {
	if policy == nil {
		return nil
	}
	meta, ok := reg.GetMeta(d.RegionID)
	mismatch := !ok || !policy.Matches(meta)
	if !mismatch {
		return nil
	}
	if policy.Mode == ModeStrict {
		return newChannelError("zref", "send", ErrInvalidFormat)
	}
	return nil
}

// ZRefRendezvousChannel is a rendezvous channel specialized for ZDesc
// values with an optional send-time format policy.
type ZRefRendezvousChannel struct {
	inner    *RendezvousChannel[ZDesc]
	registry *RegionRegistry
	policy   *FormatPolicy
}

// NewZRefRendezvousChannel creates a descriptor rendezvous channel.
// registry resolves RegionID metadata for policy checks (DefaultRegionRegistry()
// if nil); policy may be nil to skip format checking entirely.
func NewZRefRendezvousChannel(s *Scheduler, name string, registry *RegionRegistry, policy *FormatPolicy) *ZRefRendezvousChannel {
	if registry == nil {
		registry = DefaultRegionRegistry()
	}
	return &ZRefRendezvousChannel{inner: NewRendezvousChannel[ZDesc](s, name), registry: registry, policy: policy}
}

// Send publishes d, following the common timeout contract. In Strict mode,
// a metadata mismatch against the region registered as d.RegionID fails
// immediately with ErrInvalidFormat without ever parking.
func (z *ZRefRendezvousChannel) Send(ctx context.Context, d ZDesc, timeoutMs int64) error {
	if err := checkPolicy(z.registry, d, z.policy); err != nil {
		return err
	}
	return z.inner.Send(ctx, d, timeoutMs)
}

// SendCancellable is Send, additionally observing tok.
func (z *ZRefRendezvousChannel) SendCancellable(ctx context.Context, d ZDesc, timeoutMs int64, tok *Token) error {
	if err := checkPolicy(z.registry, d, z.policy); err != nil {
		return err
	}
	return z.inner.SendCancellable(ctx, d, timeoutMs, tok)
}

// Recv receives the next descriptor, following the common timeout
// contract.
func (z *ZRefRendezvousChannel) Recv(ctx context.Context, timeoutMs int64) (ZDesc, error) {
	return z.inner.Recv(ctx, timeoutMs)
}

// RecvCancellable is Recv, additionally observing tok.
func (z *ZRefRendezvousChannel) RecvCancellable(ctx context.Context, timeoutMs int64, tok *Token) (ZDesc, error) {
	return z.inner.RecvCancellable(ctx, timeoutMs, tok)
}

// Close unparks all senders, receivers, and pending select clauses with
// EPIPE.
func (z *ZRefRendezvousChannel) Close() error { return z.inner.Close() }

// Size is always 0 (rendezvous never buffers).
func (z *ZRefRendezvousChannel) Size() int { return z.inner.Size() }

// Snapshot returns the channel's current metrics totals.
func (z *ZRefRendezvousChannel) Snapshot() ChannelSnapshot { return z.inner.Snapshot() }

// SetMetricsPipe attaches a best-effort metrics event consumer.
func (z *ZRefRendezvousChannel) SetMetricsPipe(pipe chan<- ChannelMetricsEvent, cfg ChannelMetricsConfig) {
	z.inner.SetMetricsPipe(pipe, cfg)
}

// ZRefBufferedChannel is a buffered channel specialized for ZDesc values
// with an optional send-time format policy.
type ZRefBufferedChannel struct {
	inner    *BufferedChannel[ZDesc]
	registry *RegionRegistry
	policy   *FormatPolicy
}

// NewZRefBufferedChannel creates a descriptor buffered channel of the
// given capacity.
func NewZRefBufferedChannel(s *Scheduler, name string, capacity int, registry *RegionRegistry, policy *FormatPolicy) *ZRefBufferedChannel {
	if registry == nil {
		registry = DefaultRegionRegistry()
	}
	return &ZRefBufferedChannel{inner: NewBufferedChannel[ZDesc](s, name, capacity), registry: registry, policy: policy}
}

// Send enqueues d, following the common timeout contract, subject to the
// same Strict/Advisory format-policy check as ZRefRendezvousChannel.Send.
func (z *ZRefBufferedChannel) Send(ctx context.Context, d ZDesc, timeoutMs int64) error {
	if err := checkPolicy(z.registry, d, z.policy); err != nil {
		return err
	}
	return z.inner.Send(ctx, d, timeoutMs)
}

// SendCancellable is Send, additionally observing tok.
func (z *ZRefBufferedChannel) SendCancellable(ctx context.Context, d ZDesc, timeoutMs int64, tok *Token) error {
	if err := checkPolicy(z.registry, d, z.policy); err != nil {
		return err
	}
	return z.inner.SendCancellable(ctx, d, timeoutMs, tok)
}

// Recv dequeues the oldest descriptor, following the common timeout
// contract.
func (z *ZRefBufferedChannel) Recv(ctx context.Context, timeoutMs int64) (ZDesc, error) {
	return z.inner.Recv(ctx, timeoutMs)
}

// RecvCancellable is Recv, additionally observing tok.
func (z *ZRefBufferedChannel) RecvCancellable(ctx context.Context, timeoutMs int64, tok *Token) (ZDesc, error) {
	return z.inner.RecvCancellable(ctx, timeoutMs, tok)
}

// Close drains already-buffered descriptors before EPIPE (drain-on-close).
func (z *ZRefBufferedChannel) Close() error { return z.inner.Close() }

// Size returns the number of currently buffered descriptors.
func (z *ZRefBufferedChannel) Size() int { return z.inner.Size() }

// Snapshot returns the channel's current metrics totals.
func (z *ZRefBufferedChannel) Snapshot() ChannelSnapshot { return z.inner.Snapshot() }

// SetMetricsPipe attaches a best-effort metrics event consumer.
func (z *ZRefBufferedChannel) SetMetricsPipe(pipe chan<- ChannelMetricsEvent, cfg ChannelMetricsConfig) {
	z.inner.SetMetricsPipe(pipe, cfg)
}
