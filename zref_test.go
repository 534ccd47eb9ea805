package kcoro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestZRef_StrictModeMismatchReturnsEINVALWithoutParking(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()
	registry := NewRegionRegistry()
	regionID := registry.Register(0x1000, 256)
	registry.SetMeta(regionID, RegionMeta{DType: DTypeFP32, ElemBits: 32})

	policy := &FormatPolicy{
		Required: RegionMeta{DType: DTypeInt32},
		Mask:     FieldDType,
		Mode:     ModeStrict,
	}
	ch := NewZRefRendezvousChannel(s, "zref-strict", registry, policy)

	result := make(chan error, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		result <- ch.Send(ctx, ZDesc{RegionID: regionID, Len: 256}, 0)
	}, nil, 0)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrInvalidFormat)
	case <-time.After(time.Second):
		t.Fatal("strict send never returned")
	}
}

func TestZRef_AdvisoryModeMismatchStillSucceeds(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(2))
	defer s.Shutdown()
	registry := NewRegionRegistry()
	regionID := registry.Register(0x2000, 256)
	registry.SetMeta(regionID, RegionMeta{DType: DTypeFP32, ElemBits: 32})

	policy := &FormatPolicy{
		Required: RegionMeta{DType: DTypeInt32},
		Mask:     FieldDType,
		Mode:     ModeAdvisory,
	}
	ch := NewZRefRendezvousChannel(s, "zref-advisory", registry, policy)

	got := make(chan ZDesc, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		d, err := ch.Recv(ctx, -1)
		require.NoError(t, err)
		got <- d
	}, nil, 0)

	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		require.NoError(t, ch.Send(ctx, ZDesc{RegionID: regionID, Len: 256}, -1))
	}, nil, 0)

	select {
	case d := <-got:
		require.Equal(t, regionID, d.RegionID)
	case <-time.After(time.Second):
		t.Fatal("advisory send/recv never completed")
	}
}

func TestZRef_MatchingMetadataStrictSendRecvRoundtrips(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(2))
	defer s.Shutdown()
	registry := NewRegionRegistry()
	regionID := registry.Register(0x3000, 512)
	registry.SetMeta(regionID, RegionMeta{DType: DTypeFP16, ElemBits: 16})

	policy := &FormatPolicy{
		Required: RegionMeta{DType: DTypeFP16},
		Mask:     FieldDType,
		Mode:     ModeStrict,
	}
	ch := NewZRefBufferedChannel(s, "zref-match", 4, registry, policy)

	want := ZDesc{RegionID: regionID, Len: 512, Addr: 0x3000, Offset: 16}
	got := make(chan ZDesc, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		require.NoError(t, ch.Send(ctx, want, -1))
		d, err := ch.Recv(ctx, -1)
		require.NoError(t, err)
		got <- d
	}, nil, 0)

	select {
	case d := <-got:
		require.Equal(t, want, d)
	case <-time.After(time.Second):
		t.Fatal("matching strict send/recv never completed")
	}
}

func TestZRef_NilPolicySkipsCheckEntirely(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()
	registry := NewRegionRegistry()
	ch := NewZRefRendezvousChannel(s, "zref-nopolicy", registry, nil)

	result := make(chan error, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		// RegionID 0 was never registered; with no policy this must not
		// attempt a metadata lookup at all.
		result <- ch.Send(ctx, ZDesc{RegionID: 0, Len: 8}, 0)
	}, nil, 0)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrWouldBlock)
	case <-time.After(time.Second):
		t.Fatal("send never returned")
	}
}
