package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"xinyuan_tech/billing-webhook-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchoolRepo struct {
	schools map[string]*School
	err     error
}

func (f *fakeSchoolRepo) GetByCustomerID(_ context.Context, customerID string) (*School, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.schools[customerID], nil
}

type fakeMembershipRepo struct {
	memberships map[string]*Membership
	err         error
}

func (f *fakeMembershipRepo) GetByPriceID(_ context.Context, priceID string) (*Membership, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.memberships[priceID], nil
}

type fakeSubRepo struct {
	subs        map[string]*Subscription
	nextID      uint64
	createCalls int
	updateCalls int
	getErr      error
	createErr   error
	updateErr   error
	// dupOnCreate 模拟并发竞争：Create 返回重复错误，
	// 同时把 racer 写入存储，仿佛另一个 worker 抢先插入
	dupOnCreate bool
	racer       *Subscription
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: map[string]*Subscription{}}
}

func (f *fakeSubRepo) GetByExternalID(_ context.Context, externalID string) (*Subscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.subs[externalID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubRepo) Create(_ context.Context, sub *Subscription) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if f.dupOnCreate {
		f.dupOnCreate = false
		if f.racer != nil {
			f.subs[f.racer.ExternalID] = f.racer
		}
		return ErrSubscriptionExists
	}
	if _, ok := f.subs[sub.ExternalID]; ok {
		return ErrSubscriptionExists
	}
	f.nextID++
	sub.ID = f.nextID
	cp := *sub
	f.subs[sub.ExternalID] = &cp
	return nil
}

func (f *fakeSubRepo) Update(_ context.Context, sub *Subscription) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	cp := *sub
	f.subs[sub.ExternalID] = &cp
	return nil
}

func newTestUsecase(subRepo *fakeSubRepo) *ReconcileUsecase {
	schoolRepo := &fakeSchoolRepo{schools: map[string]*School{
		"cus_123": {ID: 7, MarketID: "us", Name: "Springfield High", ExternalCustomerID: "cus_123"},
	}}
	membershipRepo := &fakeMembershipRepo{memberships: map[string]*Membership{
		"price_456": {ID: 3, MarketID: "us", Name: "Standard", ExternalPriceID: "price_456", Period: "month", MaxUsers: 50},
	}}
	return NewReconcileUsecase(schoolRepo, membershipRepo, subRepo, log.NewStdLogger(testWriter{}))
}

func subscriptionEvent(eventType, payload string) *Envelope {
	body := fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":%s}}`, eventType, payload)
	env, err := ParseEnvelope([]byte(body))
	if err != nil {
		panic(err)
	}
	return env
}

func createdPayload(status string) string {
	return fmt.Sprintf(`{
		"id": "sub_abc",
		"customer": "cus_123",
		"status": %q,
		"start_date": 1700000000,
		"current_period_start": 1700000000,
		"current_period_end": 1702592000,
		"items": {"data": [{"price": {"id": "price_456"}}]}
	}`, status)
}

func deletedPayload() string {
	return `{
		"id": "sub_abc",
		"customer": "cus_123",
		"status": "canceled",
		"start_date": 1700000000,
		"canceled_at": 1701000000,
		"ended_at": 1701000000,
		"items": {"data": [{"price": {"id": "price_456"}}]}
	}`
}

func TestDispatch_UnknownEventType(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("invoice.paid", `{}`))
	assert.True(t, outcome.Success)
	assert.False(t, outcome.Retry)
	assert.Equal(t, OutcomeEventIgnored, outcome.Message)
	assert.Zero(t, repo.createCalls)
}

func TestDispatch_ProviderPrefixedType(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("customer.subscription.created", createdPayload("active")))
	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.Message)
	assert.Len(t, repo.subs, 1)
}

func TestDispatch_MalformedPayload(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", `{"customer": 42}`))
	assert.False(t, outcome.Success)
	assert.False(t, outcome.Retry)
	assert.Equal(t, OutcomePayloadMalformed, outcome.Message)
	assert.Zero(t, repo.createCalls)
}

func TestDispatch_PayloadWithoutSubscriptionID(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", `{"customer":"cus_123"}`))
	assert.False(t, outcome.Success)
	assert.False(t, outcome.Retry)
	assert.Equal(t, OutcomePayloadMalformed, outcome.Message)
}

func TestReconcile_SchoolNotFound(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)
	payload := `{"id":"sub_x","customer":"cus_unknown","status":"active","items":{"data":[{"price":{"id":"price_456"}}]}}`

	for _, eventType := range []string{"subscription.created", "subscription.updated", "subscription.deleted"} {
		outcome := uc.Dispatch(context.Background(), subscriptionEvent(eventType, payload))
		assert.True(t, outcome.Success, eventType)
		assert.False(t, outcome.Retry, eventType)
		assert.Equal(t, OutcomeSchoolNotFound, outcome.Message, eventType)
	}
	assert.Zero(t, repo.createCalls)
	assert.Zero(t, repo.updateCalls)
}

func TestReconcile_MembershipNotFound(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)
	payload := `{"id":"sub_x","customer":"cus_123","status":"active","items":{"data":[{"price":{"id":"price_unknown"}}]}}`

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", payload))
	assert.True(t, outcome.Success)
	assert.Equal(t, OutcomeMembershipNotFound, outcome.Message)
	assert.Zero(t, repo.createCalls)
}

func TestReconcile_RepoErrorIsRetryable(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)
	repo.getErr = errors.New("connection refused")

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("active")))
	assert.False(t, outcome.Success)
	assert.True(t, outcome.Retry)
}

func TestHandleCreated_FieldMapping(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("active")))
	require.True(t, outcome.Success)
	assert.Empty(t, outcome.Message)

	sub := repo.subs["sub_abc"]
	require.NotNil(t, sub)
	assert.Equal(t, uint64(7), sub.SchoolID)
	require.NotNil(t, sub.MembershipID)
	assert.Equal(t, uint64(3), *sub.MembershipID)
	assert.Equal(t, "active", sub.Status)
	require.NotNil(t, sub.StartsAt)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *sub.StartsAt)
	require.NotNil(t, sub.CurrentPeriodEndsAt)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), *sub.CurrentPeriodEndsAt)
	assert.Nil(t, sub.CancelsAt)
	assert.Nil(t, sub.CanceledAt)
	assert.Nil(t, sub.EndedAt)
}

func TestHandleCreated_Idempotent(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	first := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("active")))
	require.True(t, first.Success)

	// 第二次投递载荷不同，但外部订阅ID相同：保留首次字段
	second := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("trialing")))
	assert.True(t, second.Success)
	assert.Equal(t, OutcomeAlreadyExists, second.Message)

	require.Len(t, repo.subs, 1)
	assert.Equal(t, "active", repo.subs["sub_abc"].Status)
}

func TestHandleCreated_ConcurrentInsertRace(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)
	repo.dupOnCreate = true
	repo.racer = &Subscription{ID: 99, ExternalID: "sub_abc", SchoolID: 7, Status: "active"}

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("active")))
	assert.True(t, outcome.Success)
	assert.Equal(t, OutcomeAlreadyExists, outcome.Message)
}

func TestHandleUpdated_CreatesWhenMissing(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.updated", createdPayload("past_due")))
	require.True(t, outcome.Success)

	sub := repo.subs["sub_abc"]
	require.NotNil(t, sub)
	assert.Equal(t, "past_due", sub.Status)
	assert.Equal(t, 1, repo.createCalls)
	assert.Zero(t, repo.updateCalls)
}

func TestHandleUpdated_CreatesCanceledWhenEventAlreadyCanceled(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.updated", deletedPayload()))
	require.True(t, outcome.Success)

	sub := repo.subs["sub_abc"]
	require.NotNil(t, sub)
	assert.Equal(t, constants.StatusCanceled, sub.Status)
	// 单次写入，没有先建活跃行再取消的双写
	assert.Equal(t, 1, repo.createCalls)
	assert.Zero(t, repo.updateCalls)
}

func TestHandleUpdated_Refresh(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	require.True(t, uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("trialing"))).Success)

	updated := `{
		"id": "sub_abc",
		"customer": "cus_123",
		"status": "active",
		"start_date": 1700000000,
		"cancel_at": 1710000000,
		"current_period_start": 1702592000,
		"current_period_end": 1705184000,
		"items": {"data": [{"price": {"id": "price_456"}}]}
	}`
	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.updated", updated))
	require.True(t, outcome.Success)

	sub := repo.subs["sub_abc"]
	assert.Equal(t, "active", sub.Status)
	require.NotNil(t, sub.CancelsAt)
	assert.Equal(t, time.Unix(1710000000, 0).UTC(), *sub.CancelsAt)
	require.NotNil(t, sub.CurrentPeriodStartsAt)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), *sub.CurrentPeriodStartsAt)
	// 归属学校不变
	assert.Equal(t, uint64(7), sub.SchoolID)
	assert.Equal(t, "sub_abc", sub.ExternalID)
}

func TestHandleUpdated_CanceledIsTerminal(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	require.True(t, uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("active"))).Success)
	require.True(t, uc.Dispatch(context.Background(), subscriptionEvent("subscription.deleted", deletedPayload())).Success)

	// 晚到的 update 不得复活已取消的订阅
	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.updated", createdPayload("active")))
	assert.True(t, outcome.Success)
	assert.Equal(t, OutcomeAlreadyCanceled, outcome.Message)
	assert.Equal(t, constants.StatusCanceled, repo.subs["sub_abc"].Status)
}

func TestHandleDeleted_AfterCreated(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	require.True(t, uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", createdPayload("active"))).Success)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.deleted", deletedPayload()))
	require.True(t, outcome.Success)

	sub := repo.subs["sub_abc"]
	assert.Equal(t, constants.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.Equal(t, time.Unix(1701000000, 0).UTC(), *sub.CanceledAt)
}

func TestHandleDeleted_CreatesCanceledWhenMissing(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.deleted", deletedPayload()))
	require.True(t, outcome.Success)

	sub := repo.subs["sub_abc"]
	require.NotNil(t, sub)
	assert.Equal(t, constants.StatusCanceled, sub.Status)
	assert.Equal(t, 1, repo.createCalls)
	assert.Zero(t, repo.updateCalls)
}

func TestHandleDeleted_Idempotent(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	require.True(t, uc.Dispatch(context.Background(), subscriptionEvent("subscription.deleted", deletedPayload())).Success)

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.deleted", deletedPayload()))
	assert.True(t, outcome.Success)
	assert.Equal(t, OutcomeAlreadyCanceled, outcome.Message)
	assert.Len(t, repo.subs, 1)
}

func TestHandleDeleted_ConcurrentInsertRaceFallsBackToCancel(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)
	repo.dupOnCreate = true
	repo.racer = &Subscription{ID: 99, ExternalID: "sub_abc", SchoolID: 7, Status: "active"}

	outcome := uc.Dispatch(context.Background(), subscriptionEvent("subscription.deleted", deletedPayload()))
	require.True(t, outcome.Success)
	assert.Equal(t, constants.StatusCanceled, repo.subs["sub_abc"].Status)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestSubscriptionPayload_CustomOverridesPassThrough(t *testing.T) {
	repo := newFakeSubRepo()
	uc := newTestUsecase(repo)

	payload := `{
		"id": "sub_abc",
		"customer": "cus_123",
		"status": "active",
		"start_date": 1700000000,
		"custom_price": 99.5,
		"custom_max_users": 200,
		"items": {"data": [{"price": {"id": "price_456"}}]}
	}`
	require.True(t, uc.Dispatch(context.Background(), subscriptionEvent("subscription.created", payload)).Success)

	sub := repo.subs["sub_abc"]
	require.NotNil(t, sub.CustomPrice)
	assert.Equal(t, 99.5, *sub.CustomPrice)
	require.NotNil(t, sub.CustomMaxUsers)
	assert.Equal(t, 200, *sub.CustomMaxUsers)
}

func TestParseEnvelope_RawPayloadPreserved(t *testing.T) {
	env := subscriptionEvent("subscription.created", createdPayload("active"))

	var payload SubscriptionPayload
	require.NoError(t, json.Unmarshal(env.Data.Object, &payload))
	assert.Equal(t, "sub_abc", payload.ID)
	assert.Equal(t, "cus_123", payload.Customer)
	assert.Equal(t, "price_456", payload.PriceID())
}

func TestSubscriptionPayload_NoLineItems(t *testing.T) {
	var payload SubscriptionPayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"sub_x","customer":"cus_123"}`), &payload))
	assert.Empty(t, payload.PriceID())
}
