package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/tracing"
)

// ComposerConfig names the writer base URLs the composer reads through.
type ComposerConfig struct {
	OfferingURL       string
	SpecificationURL  string
	CharacteristicURL string
	PricingURL        string
	Timeout           time.Duration
	AuthToken         string
}

// Composer builds a denormalized document by synchronously fetching the
// authoritative entities from the writer services. A slow or failing writer
// surfaces as an error so the triggering event is redelivered instead of
// ledgered.
type Composer struct {
	config ComposerConfig
	client *http.Client
}

// NewComposer wires a composer with the configured read-through timeout.
func NewComposer(config ComposerConfig) *Composer {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	return &Composer{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Source shapes mirror the writers' response bodies.
type sourceOffering struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SpecificationIDs []string `json:"specification_ids"`
	PriceIDs         []string `json:"price_ids"`
	SalesChannels    []string `json:"sales_channels"`
	LifecycleStatus  string   `json:"lifecycle_status"`
}

type sourceSpecification struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	CharacteristicIDs []string `json:"characteristic_ids"`
}

type sourceCharacteristic struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

type sourcePrice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Unit     string `json:"unit"`
}

// ErrRetired reports that composition found the offering RETIRED; the caller
// deletes any existing document instead of writing one.
var ErrRetired = apperr.New(apperr.KindLifecycle, "offering is retired")

// ErrOfferingGone reports that the offering itself no longer exists at the
// writer. Only this fetch failing 404 means the document should go away;
// a missing nested reference never does.
var ErrOfferingGone = apperr.New(apperr.KindNotFound, "offering not found at writer")

// Compose fetches the offering and its references and assembles the
// document. A RETIRED offering returns ErrRetired; a deleted one returns
// ErrOfferingGone. References that 404 are dropped from the view, since a
// delete event for them may arrive before (or trigger) this recomposition.
func (c *Composer) Compose(ctx context.Context, offeringID string) (*Document, error) {
	var off sourceOffering
	if err := c.fetch(ctx, c.config.OfferingURL+"/api/v1/offerings/"+offeringID, &off); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, fmt.Errorf("fetch offering %s: %w", offeringID, ErrOfferingGone)
		}
		return nil, fmt.Errorf("fetch offering %s: %w", offeringID, err)
	}
	if off.LifecycleStatus == "RETIRED" {
		return nil, ErrRetired
	}

	doc := &Document{
		ID:              off.ID,
		Name:            off.Name,
		Description:     off.Description,
		LifecycleStatus: off.LifecycleStatus,
		Channels:        off.SalesChannels,
		Specifications:  make([]SpecView, 0, len(off.SpecificationIDs)),
		Pricing:         make([]PriceView, 0, len(off.PriceIDs)),
		ComposedAt:      time.Now().UTC(),
	}

	for _, specID := range off.SpecificationIDs {
		var spec sourceSpecification
		if err := c.fetch(ctx, c.config.SpecificationURL+"/api/v1/specifications/"+specID, &spec); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				continue
			}
			return nil, fmt.Errorf("fetch specification %s: %w", specID, err)
		}
		view := SpecView{
			ID:              spec.ID,
			Name:            spec.Name,
			Characteristics: make([]CharacteristicView, 0, len(spec.CharacteristicIDs)),
		}
		for _, charID := range spec.CharacteristicIDs {
			var char sourceCharacteristic
			if err := c.fetch(ctx, c.config.CharacteristicURL+"/api/v1/characteristics/"+charID, &char); err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					continue
				}
				return nil, fmt.Errorf("fetch characteristic %s: %w", charID, err)
			}
			view.Characteristics = append(view.Characteristics, CharacteristicView{
				ID: char.ID, Name: char.Name, Value: char.Value, Unit: char.Unit,
			})
		}
		doc.Specifications = append(doc.Specifications, view)
	}

	for _, priceID := range off.PriceIDs {
		var price sourcePrice
		if err := c.fetch(ctx, c.config.PricingURL+"/api/v1/prices/"+priceID, &price); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				continue
			}
			return nil, fmt.Errorf("fetch price %s: %w", priceID, err)
		}
		doc.Pricing = append(doc.Pricing, PriceView{
			ID: price.ID, Name: price.Name, Value: price.Value,
			Currency: price.Currency, Unit: price.Unit,
		})
	}
	return doc, nil
}

func (c *Composer) fetch(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindServiceUnavailable, "writer unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperr.New(apperr.KindNotFound, "entity not found at writer")
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.Newf(apperr.KindServiceUnavailable, "writer returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode writer response: %w", err)
	}
	return nil
}
