package di

import (
	"fmt"

	"go.uber.org/dig"
)

// NewContainer 创建依赖注入容器
func NewContainer() *dig.Container {
	return dig.New()
}

// BuildContainer 创建容器并注册全部提供者
func BuildContainer() (*dig.Container, error) {
	container := NewContainer()
	if err := RegisterProviders(container); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}
	return container, nil
}

// InvokeOn 调用指定容器，剥离dig的错误包装以保留AppError
func InvokeOn(container *dig.Container, function interface{}, opts ...dig.InvokeOption) error {
	if err := container.Invoke(function, opts...); err != nil {
		return dig.RootCause(err)
	}
	return nil
}
