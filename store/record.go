package store

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chessdojo/dirtree/directory"
)

// directoryRecord is the stored shape of a directory row.
type directoryRecord struct {
	Owner      string                `dynamodbav:"owner"`
	ID         string                `dynamodbav:"id"`
	Parent     string                `dynamodbav:"parent"`
	Name       string                `dynamodbav:"name"`
	Visibility string                `dynamodbav:"visibility"`
	Items      map[string]itemRecord `dynamodbav:"items"`
	ItemIDs    []string              `dynamodbav:"itemIds"`
	Access     map[string]string     `dynamodbav:"access,omitempty"`
	Version    int64                 `dynamodbav:"version,omitempty"`
	CreatedAt  string                `dynamodbav:"createdAt"`
	UpdatedAt  string                `dynamodbav:"updatedAt"`
}

// itemRecord is the stored shape of one entry of a directory's items map.
// Metadata holds either directory or game fields depending on Type.
type itemRecord struct {
	Type     string         `dynamodbav:"type"`
	ID       string         `dynamodbav:"id"`
	AddedBy  string         `dynamodbav:"addedBy,omitempty"`
	Metadata metadataRecord `dynamodbav:"metadata"`
}

type metadataRecord struct {
	Name       string `dynamodbav:"name,omitempty"`
	Visibility string `dynamodbav:"visibility,omitempty"`

	Cohort           string `dynamodbav:"cohort,omitempty"`
	ID               string `dynamodbav:"id,omitempty"`
	Owner            string `dynamodbav:"owner,omitempty"`
	OwnerDisplayName string `dynamodbav:"ownerDisplayName,omitempty"`
	White            string `dynamodbav:"white,omitempty"`
	Black            string `dynamodbav:"black,omitempty"`
	WhiteElo         int    `dynamodbav:"whiteElo,omitempty"`
	BlackElo         int    `dynamodbav:"blackElo,omitempty"`
	Result           string `dynamodbav:"result,omitempty"`
	Date             string `dynamodbav:"date,omitempty"`

	CreatedAt string `dynamodbav:"createdAt,omitempty"`
	UpdatedAt string `dynamodbav:"updatedAt,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toItemRecord(it directory.Item) itemRecord {
	rec := itemRecord{
		Type:    string(it.Type),
		ID:      it.ID,
		AddedBy: it.AddedBy,
	}
	switch {
	case it.Directory != nil:
		rec.Metadata = metadataRecord{
			Name:       it.Directory.Name,
			Visibility: string(it.Directory.Visibility),
			CreatedAt:  formatTime(it.Directory.CreatedAt),
			UpdatedAt:  formatTime(it.Directory.UpdatedAt),
		}
	case it.Game != nil:
		g := it.Game
		rec.Metadata = metadataRecord{
			Cohort:           g.Cohort,
			ID:               g.ID,
			Owner:            g.Owner,
			OwnerDisplayName: g.OwnerDisplayName,
			White:            g.White,
			Black:            g.Black,
			WhiteElo:         g.WhiteElo,
			BlackElo:         g.BlackElo,
			Result:           g.Result,
			Date:             g.Date,
			CreatedAt:        formatTime(g.CreatedAt),
		}
	}
	return rec
}

func (r itemRecord) toItem() directory.Item {
	it := directory.Item{
		Type:    directory.ItemType(r.Type),
		ID:      r.ID,
		AddedBy: r.AddedBy,
	}
	m := r.Metadata
	switch {
	case it.Type == directory.ItemTypeDirectory:
		it.Directory = &directory.DirectoryMetadata{
			Name:       m.Name,
			Visibility: directory.Visibility(m.Visibility),
			CreatedAt:  parseTime(m.CreatedAt),
			UpdatedAt:  parseTime(m.UpdatedAt),
		}
	case it.Type.IsGame():
		it.Game = &directory.GameMetadata{
			Cohort:           m.Cohort,
			ID:               m.ID,
			Owner:            m.Owner,
			OwnerDisplayName: m.OwnerDisplayName,
			White:            m.White,
			Black:            m.Black,
			WhiteElo:         m.WhiteElo,
			BlackElo:         m.BlackElo,
			Result:           m.Result,
			Date:             m.Date,
			CreatedAt:        parseTime(m.CreatedAt),
		}
	}
	return it
}

func toRecord(d *directory.Directory) directoryRecord {
	rec := directoryRecord{
		Owner:      d.Owner,
		ID:         d.ID,
		Parent:     d.Parent,
		Name:       d.Name,
		Visibility: string(d.Visibility),
		Items:      make(map[string]itemRecord, len(d.Items)),
		ItemIDs:    append([]string{}, d.ItemIDs...),
		Version:    d.Version,
		CreatedAt:  formatTime(d.CreatedAt),
		UpdatedAt:  formatTime(d.UpdatedAt),
	}
	for id, it := range d.Items {
		rec.Items[id] = toItemRecord(it)
	}
	if len(d.Access) > 0 {
		rec.Access = accessRecord(d.Access)
	}
	return rec
}

func accessRecord(access map[string]directory.Role) map[string]string {
	out := make(map[string]string, len(access))
	for user, role := range access {
		out[user] = role.String()
	}
	return out
}

func (r directoryRecord) toDirectory() (*directory.Directory, error) {
	d := &directory.Directory{
		Owner:      r.Owner,
		ID:         r.ID,
		Parent:     r.Parent,
		Name:       r.Name,
		Visibility: directory.Visibility(r.Visibility),
		Items:      make(map[string]directory.Item, len(r.Items)),
		ItemIDs:    append([]string{}, r.ItemIDs...),
		Version:    r.Version,
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}
	for id, it := range r.Items {
		d.Items[id] = it.toItem()
	}
	if len(r.Access) > 0 {
		d.Access = make(map[string]directory.Role, len(r.Access))
		for user, s := range r.Access {
			role, err := directory.ParseRole(s)
			if err != nil {
				return nil, fmt.Errorf("directory %s/%s: access for %s: %w", r.Owner, r.ID, user, err)
			}
			d.Access[user] = role
		}
	}
	return d, nil
}

// MarshalDirectory encodes d as a DynamoDB item.
func MarshalDirectory(d *directory.Directory) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(toRecord(d))
	if err != nil {
		return nil, fmt.Errorf("marshal directory: %w", err)
	}
	return item, nil
}

// UnmarshalDirectory decodes a DynamoDB item, such as a stream image
// converted with stream.ConvertImage, into a Directory.
func UnmarshalDirectory(item map[string]types.AttributeValue) (*directory.Directory, error) {
	var rec directoryRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal directory: %w", err)
	}
	return rec.toDirectory()
}

func marshalItem(it directory.Item) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(toItemRecord(it))
	if err != nil {
		return nil, fmt.Errorf("marshal item %s: %w", it.ID, err)
	}
	return av, nil
}
