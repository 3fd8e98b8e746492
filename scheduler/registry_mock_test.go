package scheduler_test

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/csopesy/simcore/process"
)

// MockRegistry is a hand-written gomock double for scheduler.Registry,
// used to unit-test Tick's phases without wiring a full kernel.
type MockRegistry struct {
	ctrl     *gomock.Controller
	recorder *MockRegistryMockRecorder
}

type MockRegistryMockRecorder struct {
	mock *MockRegistry
}

func NewMockRegistry(ctrl *gomock.Controller) *MockRegistry {
	m := &MockRegistry{ctrl: ctrl}
	m.recorder = &MockRegistryMockRecorder{m}
	return m
}

func (m *MockRegistry) EXPECT() *MockRegistryMockRecorder {
	return m.recorder
}

func (m *MockRegistry) Get(id int) (*process.Process, bool) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", id)
	p, _ := ret[0].(*process.Process)
	ok, _ := ret[1].(bool)
	return p, ok
}

func (mr *MockRegistryMockRecorder) Get(id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockRegistry)(nil).Get), id)
}

func (m *MockRegistry) IDsByStatus(status process.Status) []int {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "IDsByStatus", status)
	ids, _ := ret[0].([]int)
	return ids
}

func (mr *MockRegistryMockRecorder) IDsByStatus(status any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "IDsByStatus", reflect.TypeOf((*MockRegistry)(nil).IDsByStatus), status)
}

func (m *MockRegistry) All() map[int]*process.Process {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "All")
	all, _ := ret[0].(map[int]*process.Process)
	return all
}

func (mr *MockRegistryMockRecorder) All() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "All", reflect.TypeOf((*MockRegistry)(nil).All))
}
