package usecase

import "BrentShift/internal/domain/service"

var (
	_ service.ChangePointService = (*AnalysisUseCase)(nil)
	_ service.JobService         = (*JobUseCase)(nil)
	_ service.PriceService       = (*PricesUseCase)(nil)
)
