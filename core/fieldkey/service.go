package fieldkey

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrNotFound           = errors.New("field key not found")
	ErrNoData             = errors.New("no data to discover fields from yet")
	ErrValidationRejected = errors.New("field catalog can only be built from the database")
	ErrSelectorRequired   = errors.New("one of id or placeholderKey is required")
	ErrKeySetIDRequired   = errors.New("key set id is required")
	ErrPlaceholderTaken   = errors.New("placeholder is already used by another field")

	NowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

// catalog document keys
const (
	keyPlaceholder  = "placeholderKey"
	keyDBFieldPath  = "dbFieldPath"
	keyLabel        = "label"
	keyIcon         = "icon"
	keyExistsInDB   = "existsInDb"
	keyDataType     = "dataType"
	keyDefaultValue = "defaultValue"
	keyKeyName      = "keyName"
	keyKeyType      = "keyType"
	keyFormula      = "formula"
	keyCustomKeySet = "customKeySet"
	keyDescription  = "description"
	keyManual       = "manualFields"
	keyTest         = "testFields"
	keyCalculations = "calculations"
	keyConfig       = "config"
	keyCreatedAt    = "createdAt"
	keyUpdatedAt    = "updatedAt"
)

// Service is the field mapping store: the persisted catalog plus custom key sets.
type Service struct {
	store        core.DocumentStore
	discoverer   *Discoverer
	collection   string
	isIdentifier IdentifierPredicate
	validate     *validator.Validate
}

func NewService(store core.DocumentStore, discoverer *Discoverer, validate *validator.Validate, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(discoverer, "discoverer"),
		vala.IsNotNil(validate, "validate"),
		vala.StringNotEmpty(conf.CatalogCollection, "catalog.collection"),
	).CheckAndPanic()
	return &Service{
		store:        store,
		discoverer:   discoverer,
		collection:   conf.CatalogCollection,
		isIdentifier: IsObjectIDHex,
		validate:     validate,
	}
}

// WithIdentifierPredicate replaces the identifier-shape test used to prune the catalog.
func (svc *Service) WithIdentifierPredicate(p IdentifierPredicate) *Service {
	svc.isIdentifier = p
	return svc
}

func notKeySet(tenantID string) core.Filter {
	return core.Filter{core.TenantKey: tenantID, keyCustomKeySet: core.Filter{core.OpNe: true}}
}

// ListFields returns the tenant's custom key sets (opts.Custom) or its field catalog.
// The catalog is (re)discovered when it holds no discovered entry or when opts.Refresh is set;
// ErrNoData is returned when there is nothing to discover from.
func (svc *Service) ListFields(ctx context.Context, tenantID string, opts ListOptions) (Listing, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Listing{}, err
	}
	if opts.Custom {
		sets, err := svc.keySets(ctx, tenantID)
		if err != nil {
			return Listing{}, err
		}
		return Listing{KeySets: sets}, nil
	}

	var (
		fields []Field
		err    error
	)
	if !opts.Refresh {
		if fields, err = svc.fields(ctx, tenantID); err != nil {
			return Listing{}, err
		}
	}
	if opts.Refresh || !hasDiscovered(fields) {
		if _, err = svc.refresh(ctx, tenantID); err != nil {
			return Listing{}, err
		}
		if fields, err = svc.fields(ctx, tenantID); err != nil {
			return Listing{}, err
		}
	}
	return Listing{Fields: fields}, nil
}

func hasDiscovered(fields []Field) bool {
	for _, f := range fields {
		if !f.IsCustom() {
			return true
		}
	}
	return false
}

// UpsertFromDiscovery runs discovery and persists its result, returning the number of processed entries.
func (svc *Service) UpsertFromDiscovery(ctx context.Context, tenantID string, opts UpsertOptions) (int, error) {
	if opts.ValidateFromDB != nil && !*opts.ValidateFromDB {
		return 0, ErrValidationRejected
	}
	if err := core.CheckTenant(tenantID); err != nil {
		return 0, err
	}
	return svc.refresh(ctx, tenantID)
}

func (svc *Service) refresh(ctx context.Context, tenantID string) (int, error) {
	discovered, err := svc.discoverer.Discover(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if len(discovered) == 0 {
		return 0, ErrNoData
	}

	owned, err := svc.customPlaceholders(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	now := NowFunc()
	ops := make([]core.Upsert, 0, len(discovered))
	for _, f := range discovered {
		if owned[f.PlaceholderKey] {
			continue
		}
		ops = append(ops, core.Upsert{
			Filter: core.Filter{
				core.TenantKey: tenantID,
				keyPlaceholder: f.PlaceholderKey,
				keyKeyType:     core.Filter{core.OpExists: false},
			},
			Set: core.Document{
				keyDBFieldPath:  f.DBFieldPath,
				keyLabel:        f.Label,
				keyIcon:         f.Icon,
				keyExistsInDB:   true,
				keyDataType:     f.DataType,
				keyDefaultValue: f.DefaultValue,
				keyUpdatedAt:    now,
			},
			SetOnInsert: core.Document{keyCreatedAt: now},
		})
	}
	if err = svc.store.UpsertMany(ctx, svc.collection, ops); err != nil {
		return 0, errors.Wrap(err, "saving discovered fields")
	}
	if err = svc.prune(ctx, tenantID); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// customPlaceholders returns the placeholders held by the tenant's legacy custom keys.
func (svc *Service) customPlaceholders(ctx context.Context, tenantID string) (map[string]bool, error) {
	filter := notKeySet(tenantID)
	filter[keyKeyType] = core.Filter{core.OpExists: true}
	docs, err := svc.store.Find(ctx, svc.collection, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying custom keys")
	}
	owned := make(map[string]bool, len(docs))
	for _, doc := range docs {
		owned[doc.String(keyPlaceholder)] = true
	}
	return owned, nil
}

// SaveCustomKeySet creates a key set, or replaces the one identified by opts.KeySetID when opts.IsEdit.
func (svc *Service) SaveCustomKeySet(ctx context.Context, tenantID string, def KeySetDef, opts SaveOptions) (string, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return "", err
	}
	if err := def.Validate(svc.validate); err != nil {
		return "", err
	}

	now := NowFunc()
	doc := core.Document{
		keyKeyName:      def.KeyName,
		keyDescription:  def.Description,
		keyManual:       keySetFieldsToDocs(def.ManualFields),
		keyTest:         keySetFieldsToDocs(def.TestFields),
		keyCalculations: calculationsToDocs(def.Calculations),
		keyConfig:       configToDoc(def.Config),
		keyCustomKeySet: true,
		keyExistsInDB:   false,
		keyUpdatedAt:    now,
	}

	id := opts.KeySetID
	if opts.IsEdit {
		if id == "" {
			return "", ErrKeySetIDRequired
		}
		filter := core.Filter{core.TenantKey: tenantID, core.IDKey: id, keyCustomKeySet: true}
		matched, err := svc.store.UpdateOne(ctx, svc.collection, filter, doc)
		if err != nil {
			return "", errors.Wrap(err, "updating key set")
		}
		if matched == 0 {
			return "", ErrNotFound
		}
	} else {
		doc[core.TenantKey] = tenantID
		doc[keyCreatedAt] = now
		var err error
		if id, err = svc.store.InsertOne(ctx, svc.collection, doc); err != nil {
			return "", errors.Wrap(err, "creating key set")
		}
	}

	if err := svc.prune(ctx, tenantID); err != nil {
		return "", err
	}
	return id, nil
}

// LegacyPlaceholder derives the placeholder of a legacy custom key.
func LegacyPlaceholder(keyName, name string) string {
	return LowerCamel(keyName + " " + name)
}

// SaveLegacyCustomKeys upserts one catalog entry per key, keyed by (placeholder, tenant, keyName).
// A key whose placeholder is held by a discovered field or by another key name is rejected.
func (svc *Service) SaveLegacyCustomKeys(ctx context.Context, tenantID, keyName string, keys []LegacyKey) (int, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return 0, err
	}
	lk := LegacyKeys{KeyName: keyName, Keys: keys}
	if err := lk.Validate(svc.validate); err != nil {
		return 0, err
	}

	placeholders := make([]string, len(lk.Keys))
	for i, key := range lk.Keys {
		placeholders[i] = LegacyPlaceholder(lk.KeyName, key.Name)
	}
	if err := svc.claimPlaceholders(ctx, tenantID, lk.KeyName, placeholders); err != nil {
		return 0, err
	}

	now := NowFunc()
	ops := make([]core.Upsert, 0, len(lk.Keys))
	for i, key := range lk.Keys {
		placeholder := placeholders[i]
		label := core.CleanString(key.Label)
		if label == "" {
			label = DeriveLabel(placeholder)
		}
		dataType := key.DataType
		if dataType == "" {
			dataType = TypeString
			if key.KeyType == KeyTypeCalculation {
				dataType = TypeNumber
			}
		}
		ops = append(ops, core.Upsert{
			Filter: core.Filter{core.TenantKey: tenantID, keyPlaceholder: placeholder, keyKeyName: lk.KeyName},
			Set: core.Document{
				keyDBFieldPath:  placeholder,
				keyLabel:        label,
				keyIcon:         IconFor(placeholder),
				keyExistsInDB:   false,
				keyDataType:     dataType,
				keyDefaultValue: key.DefaultValue,
				keyKeyType:      key.KeyType,
				keyFormula:      key.Formula,
				keyUpdatedAt:    now,
			},
			SetOnInsert: core.Document{keyCreatedAt: now},
		})
	}
	if err := svc.store.UpsertMany(ctx, svc.collection, ops); err != nil {
		return 0, errors.Wrap(err, "saving custom keys")
	}
	if err := svc.prune(ctx, tenantID); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// claimPlaceholders fails when a placeholder repeats within the keys or is already held by an
// entry other than a custom key of the same key name.
func (svc *Service) claimPlaceholders(ctx context.Context, tenantID, keyName string, placeholders []string) error {
	in := make([]interface{}, len(placeholders))
	for i, p := range placeholders {
		in[i] = p
	}
	filter := notKeySet(tenantID)
	filter[keyPlaceholder] = core.Filter{core.OpIn: in}
	docs, err := svc.store.Find(ctx, svc.collection, filter)
	if err != nil {
		return errors.Wrap(err, "querying placeholders")
	}

	taken := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if f := fieldFromDoc(doc); !f.IsCustom() || f.KeyName != keyName {
			taken[f.PlaceholderKey] = true
		}
	}
	var fieldErrs []core.FieldError
	seen := make(map[string]bool, len(placeholders))
	for i, p := range placeholders {
		if taken[p] || seen[p] {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: "keys[" + strconv.Itoa(i) + "].name",
				Error: ErrPlaceholderTaken.Error(),
			})
		}
		seen[p] = true
	}
	if len(fieldErrs) > 0 {
		return core.NewValidationError(ErrPlaceholderTaken, fieldErrs...)
	}
	return nil
}

// UpdateField partially updates one catalog entry.
func (svc *Service) UpdateField(ctx context.Context, tenantID string, sel FieldSelector, patch FieldPatch) error {
	if err := core.CheckTenant(tenantID); err != nil {
		return err
	}
	if err := patch.Validate(svc.validate); err != nil {
		return err
	}

	filter := notKeySet(tenantID)
	switch {
	case sel.ID != "":
		filter[core.IDKey] = sel.ID
	case sel.PlaceholderKey != "":
		filter[keyPlaceholder] = sel.PlaceholderKey
	default:
		return core.NewValidationError(ErrSelectorRequired,
			core.FieldError{Field: "id", Error: ErrSelectorRequired.Error()},
			core.FieldError{Field: "placeholderKey", Error: ErrSelectorRequired.Error()},
		)
	}

	set := core.Document{keyUpdatedAt: NowFunc()}
	if patch.Label != nil {
		set[keyLabel] = core.CleanString(*patch.Label)
	}
	if patch.Icon != nil {
		set[keyIcon] = *patch.Icon
	}
	if patch.DataType != nil {
		set[keyDataType] = *patch.DataType
	}
	if patch.DefaultValue != nil {
		set[keyDefaultValue] = *patch.DefaultValue
	}
	if patch.DBFieldPath != nil {
		set[keyDBFieldPath] = core.CleanString(*patch.DBFieldPath)
	}

	matched, err := svc.store.UpdateOne(ctx, svc.collection, filter, set)
	if err != nil {
		return errors.Wrap(err, "updating field")
	}
	if matched == 0 {
		return ErrNotFound
	}
	return svc.prune(ctx, tenantID)
}

// DeleteKeySet deletes one catalog entry of the tenant by id.
func (svc *Service) DeleteKeySet(ctx context.Context, tenantID, id string) error {
	if err := core.CheckTenant(tenantID); err != nil {
		return err
	}
	if id == "" {
		return ErrNotFound
	}
	deleted, err := svc.store.DeleteOne(ctx, svc.collection, core.Filter{core.TenantKey: tenantID, core.IDKey: id})
	if err != nil {
		return errors.Wrap(err, "deleting key set")
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return svc.prune(ctx, tenantID)
}

// prune deletes the tenant's discovered entries whose path or placeholder holds an identifier.
func (svc *Service) prune(ctx context.Context, tenantID string) error {
	docs, err := svc.store.Find(ctx, svc.collection, notKeySet(tenantID))
	if err != nil {
		return errors.Wrap(err, "pruning catalog")
	}
	ids := make([]interface{}, 0)
	for _, doc := range docs {
		if svc.isIdentifier.Taints(fieldFromDoc(doc)) {
			ids = append(ids, doc.ID())
		}
	}
	if len(ids) == 0 {
		return nil
	}
	filter := core.Filter{core.TenantKey: tenantID, core.IDKey: core.Filter{core.OpIn: ids}}
	if _, err = svc.store.DeleteMany(ctx, svc.collection, filter); err != nil {
		return errors.Wrap(err, "pruning catalog")
	}
	return nil
}

// fields reads the catalog, leaving out key sets and any entry holding an identifier.
func (svc *Service) fields(ctx context.Context, tenantID string) ([]Field, error) {
	docs, err := svc.store.Find(ctx, svc.collection, notKeySet(tenantID))
	if err != nil {
		return nil, errors.Wrap(err, "querying fields")
	}
	fields := make([]Field, 0, len(docs))
	for _, doc := range docs {
		f := fieldFromDoc(doc)
		if svc.isIdentifier.Taints(f) {
			continue
		}
		fields = append(fields, f)
	}
	SortByLabel(fields)
	return fields, nil
}

func (svc *Service) keySets(ctx context.Context, tenantID string) ([]KeySet, error) {
	docs, err := svc.store.Find(ctx, svc.collection,
		core.Filter{core.TenantKey: tenantID, keyCustomKeySet: true},
		core.FindOptions{Sort: []core.DBOrdering{{Field: keyUpdatedAt, Ascending: false}}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying key sets")
	}
	sets := make([]KeySet, 0, len(docs))
	for _, doc := range docs {
		sets = append(sets, keySetFromDoc(doc))
	}
	return sets, nil
}
