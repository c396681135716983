package consent

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/store/memory"
)

type fixture struct {
	tda     repository.TenantDataAccess
	patient repository.EntityRef
	tos     *repository.Consent
	privacy *repository.Consent
	optIn   *repository.Consent
	draft   *repository.Consent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dal := memory.NewDAL()
	_, err := dal.EnsureDatabase(ctx, "acme")
	require.NoError(t, err)
	_, err = dal.Migrate(ctx, "acme")
	require.NoError(t, err)
	tda, err := dal.ForTenant(ctx, "acme")
	require.NoError(t, err)

	f := &fixture{tda: tda}
	p, err := tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", LastName: "Doe", Email: "pat@example.com"})
	require.NoError(t, err)
	f.patient = repository.EntityRef{Kind: repository.EntityPatient, ID: p.ID}

	ensure := func(key string, required bool) *repository.Consent {
		c, _, err := tda.Consents().EnsureConsent(ctx, repository.ConsentDefinition{
			Key: key, Title: key, EntityType: repository.EntityPatient, IsRequired: required, Body: key + " v1",
		}, p.CreatedAt)
		require.NoError(t, err)
		return c
	}
	f.tos = ensure("terms", true)
	f.privacy = ensure("privacy", true)
	f.optIn = ensure("marketing", false)

	// Consent sin versión ACTIVE: no exigible.
	f.draft, err = tda.Consents().CreateConsent(ctx, repository.ConsentDefinition{Key: "draft", Title: "draft", EntityType: repository.EntityPatient, IsRequired: true})
	require.NoError(t, err)
	return f
}

func (f *fixture) versionIDs(t *testing.T) map[string]int64 {
	t.Helper()
	active, err := f.tda.Consents().ListActive(context.Background(), repository.EntityPatient)
	require.NoError(t, err)
	out := map[string]int64{}
	for _, vc := range active {
		out[vc.Consent.Key] = vc.Version.ID
	}
	return out
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)

	pending, err := l.ListPending(ctx, f.tda, f.patient)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	blocking, err := l.HasBlockingConsents(ctx, f.tda, f.patient)
	require.NoError(t, err)
	require.True(t, blocking)

	ids := f.versionIDs(t)
	_, err = l.Accept(ctx, f.tda, f.patient, []int64{ids["terms"], ids["privacy"]})
	require.NoError(t, err)

	pending, err = l.ListPending(ctx, f.tda, f.patient)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "marketing", pending[0].Key)

	blocking, err = l.HasBlockingConsents(ctx, f.tda, f.patient)
	require.NoError(t, err)
	require.False(t, blocking)
}

func TestAccept_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)
	ids := f.versionIDs(t)

	res, err := l.Accept(ctx, f.tda, f.patient, []int64{ids["terms"], ids["terms"]})
	require.NoError(t, err)
	require.Equal(t, 1, res.AcceptedCount)

	res, err = l.Accept(ctx, f.tda, f.patient, []int64{ids["terms"]})
	require.NoError(t, err)
	require.Equal(t, 0, res.AcceptedCount)
	require.Equal(t, []int64{ids["terms"]}, res.AlreadyAccepted)

	n, err := f.tda.Consents().CountAcceptances(ctx, f.patient)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAccept_ConcurrentDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)
	ids := f.versionIDs(t)
	req := []int64{ids["terms"], ids["privacy"]}

	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.Accept(ctx, f.tda, f.patient, req)
			if err == nil {
				counts[i] = res.AcceptedCount
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	require.Equal(t, 2, total)
	n, err := f.tda.Consents().CountAcceptances(ctx, f.patient)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAccept_RejectsInvalidVersions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)
	ids := f.versionIDs(t)

	// Versión archivada al publicar una nueva.
	_, err := l.PublishVersion(ctx, f.tda, f.tos.ID, "terms v2")
	require.NoError(t, err)

	_, err = l.Accept(ctx, f.tda, f.patient, []int64{ids["terms"], 999})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	require.Len(t, ve.Fields["consent_version_ids"], 2)

	practitionerConsent, _, err := f.tda.Consents().EnsureConsent(ctx, repository.ConsentDefinition{
		Key: "terms", Title: "t", EntityType: repository.EntityPractitioner, Body: "pr",
	}, f.tos.CreatedAt)
	require.NoError(t, err)
	active, err := f.tda.Consents().ListActive(ctx, repository.EntityPractitioner)
	require.NoError(t, err)
	require.Equal(t, practitionerConsent.ID, active[0].Consent.ID)
	_, err = l.Accept(ctx, f.tda, f.patient, []int64{active[0].Version.ID})
	ve, ok = errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("consent_version_ids", "wrong_entity_type:"+itoa(active[0].Version.ID)))

	_, err = l.Accept(ctx, f.tda, f.patient, nil)
	_, ok = errs.IsValidation(err)
	require.True(t, ok)

	_, err = l.Accept(ctx, f.tda, repository.EntityRef{Kind: repository.EntityPatient, ID: 404}, []int64{ids["privacy"]})
	require.True(t, repository.IsNotFound(err))

	n, err := f.tda.Consents().CountAcceptances(ctx, f.patient)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAccept_ArchivedButAcceptedIsReportedAsAlreadyAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)
	ids := f.versionIDs(t)

	_, err := l.Accept(ctx, f.tda, f.patient, []int64{ids["terms"]})
	require.NoError(t, err)
	v2, err := l.PublishVersion(ctx, f.tda, f.tos.ID, "terms v2")
	require.NoError(t, err)

	// Reenvío del formulario viejo junto a la versión nueva.
	res, err := l.Accept(ctx, f.tda, f.patient, []int64{ids["terms"], v2.ID})
	require.NoError(t, err)
	require.Equal(t, []int64{v2.ID}, res.Accepted)
	require.Equal(t, []int64{ids["terms"]}, res.AlreadyAccepted)

	n, err := f.tda.Consents().CountAcceptances(ctx, f.patient)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPublishVersion_NewVersionBecomesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)
	_, err := l.AcceptRequired(ctx, f.tda, f.patient)
	require.NoError(t, err)

	v, err := l.PublishVersion(ctx, f.tda, f.tos.ID, "terms v2")
	require.NoError(t, err)
	require.Equal(t, 2, v.Version)

	pending, err := l.ListPending(ctx, f.tda, f.patient)
	require.NoError(t, err)
	keys := []string{}
	for _, p := range pending {
		keys = append(keys, p.Key)
	}
	require.ElementsMatch(t, []string{"terms", "marketing"}, keys)

	// El draft pasa a ser exigible recién cuando se publica.
	_, err = l.PublishVersion(ctx, f.tda, f.draft.ID, "draft v1")
	require.NoError(t, err)
	pending, err = l.ListPending(ctx, f.tda, f.patient)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	_, err = l.PublishVersion(ctx, f.tda, f.tos.ID, " ")
	_, ok := errs.IsValidation(err)
	require.True(t, ok)
}

func TestCreateDefinition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := New(nil)

	c, v, err := l.CreateDefinition(ctx, f.tda, DefinitionInput{Key: "telehealth", Title: "Teleconsulta", EntityType: "patient", IsRequired: true, Body: "Acepto"})
	require.NoError(t, err)
	require.Equal(t, repository.EntityPatient, c.EntityType)
	require.NotNil(t, v)
	require.Equal(t, repository.ConsentActive, v.Status)

	_, _, err = l.CreateDefinition(ctx, f.tda, DefinitionInput{Key: "telehealth", Title: "Otra", EntityType: "PATIENT"})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("key", "taken"))

	_, _, err = l.CreateDefinition(ctx, f.tda, DefinitionInput{Key: "Bad Key", Title: "x", EntityType: "robot"})
	ve, ok = errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("key", "invalid_consentkey"))
	require.True(t, ve.Has("entity_type", "invalid_entitykind"))
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
