// Package player resolves playables to concrete media streams and runs the
// playback session state machine over the media transport.
package player

import (
	"context"
	"fmt"
	"strings"
	"time"

	"AuraFM/logger"
	"AuraFM/model"
)

// ResolverConfig carries the endpoints stream resolution builds URIs from.
type ResolverConfig struct {
	LiveStreamBase    string
	StreamOverrideURL string
	CDNBase           string
}

// VaultSigner presigns direct-file URLs against a self-hosted media vault.
// Nil means no vault is configured and CDN URLs are used as-is.
type VaultSigner interface {
	PresignedStreamURL(ctx context.Context, object string, ttl time.Duration) (string, error)
}

const presignTTL = 6 * time.Hour

// Resolve maps a playable to its candidate streams in fixed preference
// order. The order never depends on network conditions.
func Resolve(p model.Playable, cfg ResolverConfig, vault VaultSigner) []model.Stream {
	switch p.Kind {
	case model.PlayableChannel:
		return resolveChannel(p.Channel, cfg)
	default:
		return resolveBroadcast(p.Broadcast, cfg, vault)
	}
}

// PreferredStream returns the single best candidate, or false when the
// entity has no playable source at all.
func PreferredStream(p model.Playable, cfg ResolverConfig, vault VaultSigner) (model.Stream, bool) {
	streams := Resolve(p, cfg, vault)
	if len(streams) == 0 {
		return model.Stream{}, false
	}
	return streams[0], true
}

func resolveChannel(c *model.Channel, cfg ResolverConfig) []model.Stream {
	// A configured override endpoint is the sole, unconditional candidate.
	if cfg.StreamOverrideURL != "" {
		return []model.Stream{{Type: model.StreamLiveAAC, URI: cfg.StreamOverrideURL}}
	}
	if !c.Playable {
		return nil
	}
	uri := fmt.Sprintf("%s/%s.aac", strings.TrimRight(cfg.LiveStreamBase, "/"), c.Identifier)
	return []model.Stream{{Type: model.StreamLiveAAC, URI: uri}}
}

// resolveBroadcast yields up to three candidates:
// direct file > single-file HLS VOD > segmented HLS event.
func resolveBroadcast(b *model.Broadcast, cfg ResolverConfig, vault VaultSigner) []model.Stream {
	var streams []model.Stream
	if b.DirectFilePath != "" {
		streams = append(streams, model.Stream{
			Type: model.StreamDirectFile,
			URI:  directFileURI(b.DirectFilePath, cfg, vault),
		})
	}
	if b.HLSFolderSingleFile != "" {
		streams = append(streams, model.Stream{
			Type: model.StreamHLSVOD,
			URI:  hlsURI(b.HLSFolderSingleFile, cfg),
		})
	}
	if b.HLSFolderSegmented != "" {
		streams = append(streams, model.Stream{
			Type: model.StreamHLSEvent,
			URI:  hlsURI(b.HLSFolderSegmented, cfg),
		})
	}
	return streams
}

func directFileURI(path string, cfg ResolverConfig, vault VaultSigner) string {
	if vault != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		uri, err := vault.PresignedStreamURL(ctx, strings.TrimLeft(path, "/"), presignTTL)
		if err == nil {
			return uri
		}
		logger.Warn("vault presign failed, falling back to CDN",
			logger.String("path", path),
			logger.ErrorField(err))
	}
	return cdnJoin(cfg.CDNBase, path)
}

func hlsURI(folder string, cfg ResolverConfig) string {
	return cdnJoin(cfg.CDNBase, strings.TrimRight(folder, "/")+"/playlist.m3u8")
}

func cdnJoin(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
