package services

import (
	"context"

	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/store"
)

// IListingDirectory resolves the authoritative owner of a listing.
type IListingDirectory interface {
	// GetOwningAgent returns apperr.NotFound when the property is unknown or removed.
	GetOwningAgent(ctx context.Context, propertyID string) (string, error)
}

// OwnerCache is the optional read-through cache in front of the directory.
type OwnerCache interface {
	GetOwner(ctx context.Context, propertyID string) (string, bool, error)
	SetOwner(ctx context.Context, propertyID, agentID string) error
}

type listingDirectory struct {
	props store.DirectoryStore
	cache OwnerCache
	log   *logger.Logger
}

// NewListingDirectory creates a directory backed by the properties collection.
// cache may be nil.
func NewListingDirectory(props store.DirectoryStore, cache OwnerCache) IListingDirectory {
	return &listingDirectory{props: props, cache: cache, log: logger.Global().Named("listing_directory")}
}

func (d *listingDirectory) GetOwningAgent(ctx context.Context, propertyID string) (string, error) {
	if propertyID == "" {
		return "", apperr.New(apperr.KindInvalidInput, "property_id is required")
	}

	if d.cache != nil {
		agentID, found, err := d.cache.GetOwner(ctx, propertyID)
		if err != nil {
			d.log.Warn("owner cache read failed", zap.String("property_id", propertyID), zap.Error(err))
		} else if found {
			return agentID, nil
		}
	}

	prop, err := d.props.FindProperty(ctx, propertyID)
	if err != nil {
		return "", err
	}

	if d.cache != nil {
		if err := d.cache.SetOwner(ctx, propertyID, prop.AgentID); err != nil {
			d.log.Warn("owner cache write failed", zap.String("property_id", propertyID), zap.Error(err))
		}
	}
	return prop.AgentID, nil
}
