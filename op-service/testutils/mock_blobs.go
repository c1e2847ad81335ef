package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

type MockBlobsFetcher struct {
	mock.Mock
}

func (m *MockBlobsFetcher) GetBlobs(ctx context.Context, ref eth.L1BlockRef, hashes []eth.IndexedBlobHash) ([]*eth.Blob, error) {
	out := m.Mock.Called(ref, hashes)
	return out.Get(0).([]*eth.Blob), out.Error(1)
}

func (m *MockBlobsFetcher) ExpectOnGetBlobs(ref eth.L1BlockRef, hashes []eth.IndexedBlobHash, blobs []*eth.Blob, err error) {
	m.Mock.On("GetBlobs", ref, hashes).Once().Return(blobs, err)
}
