package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

type recordsRequest struct {
	AllOrNone       bool                    `json:"allOrNone"`
	ExternalIDField string                  `json:"externalIdField,omitempty"`
	Records         []domain.PreparedRecord `json:"records,omitempty"`
	IDs             []string                `json:"ids,omitempty"`
}

type lookupRequest struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

type lookupResponse struct {
	Matches map[string][]string `json:"matches"`
}

type batchRequest struct {
	Records  []domain.PreparedRecord `json:"records"`
	CloseJob bool                    `json:"closeJob"`
}

type jobStateRequest struct {
	State domain.JobState `json:"state"`
}

func objectPath(object, action string) string {
	return "/objects/" + url.PathEscape(object) + "/" + action
}

func jobPath(jobID string) string {
	return "/jobs/" + url.PathEscape(jobID)
}

func (c *Client) Create(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	out := []domain.RecordResult{}
	err := c.Submit(ctx, http.MethodPost, objectPath(object, "create"), recordsRequest{AllOrNone: allOrNone, Records: records}, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	out := []domain.RecordResult{}
	err := c.Submit(ctx, http.MethodPost, objectPath(object, "update"), recordsRequest{AllOrNone: allOrNone, Records: records}, &out)
	return out, err
}

func (c *Client) Upsert(ctx context.Context, object, externalIDField string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	out := []domain.RecordResult{}
	err := c.Submit(ctx, http.MethodPost, objectPath(object, "upsert"), recordsRequest{
		AllOrNone:       allOrNone,
		ExternalIDField: externalIDField,
		Records:         records,
	}, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, object string, ids []string, allOrNone bool) ([]domain.RecordResult, error) {
	out := []domain.RecordResult{}
	err := c.Submit(ctx, http.MethodPost, objectPath(object, "delete"), recordsRequest{AllOrNone: allOrNone, IDs: ids}, &out)
	return out, err
}

func (c *Client) Lookup(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	out := lookupResponse{}
	if err := c.Do(ctx, http.MethodPost, objectPath(object, "lookup"), lookupRequest{Field: field, Values: values}, &out); err != nil {
		return nil, err
	}
	if out.Matches == nil {
		out.Matches = map[string][]string{}
	}
	return out.Matches, nil
}

func (c *Client) CreateJob(ctx context.Context, req domain.JobRequest) (*domain.JobInfo, error) {
	job := &domain.JobInfo{}
	if err := c.Submit(ctx, http.MethodPost, "/jobs", req, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) AddBatch(ctx context.Context, jobID string, records []domain.PreparedRecord, closeJob bool) (*domain.BatchInfo, error) {
	info := &domain.BatchInfo{}
	if err := c.Submit(ctx, http.MethodPost, jobPath(jobID)+"/batches", batchRequest{Records: records, CloseJob: closeJob}, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) CloseJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return c.setJobState(ctx, jobID, domain.JobStateClosed)
}

func (c *Client) AbortJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return c.setJobState(ctx, jobID, domain.JobStateAborted)
}

func (c *Client) setJobState(ctx context.Context, jobID string, state domain.JobState) (*domain.JobInfo, error) {
	job := &domain.JobInfo{}
	if err := c.Do(ctx, http.MethodPatch, jobPath(jobID), jobStateRequest{State: state}, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	job := &domain.JobInfo{}
	if err := c.Do(ctx, http.MethodGet, jobPath(jobID), nil, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) GetBatchResults(ctx context.Context, jobID, batchID string) ([]domain.RecordResult, error) {
	out := []domain.RecordResult{}
	err := c.Do(ctx, http.MethodGet, jobPath(jobID)+"/batches/"+url.PathEscape(batchID)+"/results", nil, &out)
	return out, err
}
