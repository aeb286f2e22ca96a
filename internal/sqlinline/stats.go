package sqlinline

const QIncrementJobCounters = `--sql 5b1f0c2e-8d47-4a0b-9e61-3c2d7f4a9b10
insert into analytics_daily_jobs (
  day, jobs_submitted, jobs_completed, jobs_failed, jobs_retrieved, jobs_reaped
) values (
  $1, $2, $3, $4, $5, $6
) on conflict (day) do update set
  jobs_submitted = analytics_daily_jobs.jobs_submitted + excluded.jobs_submitted,
  jobs_completed = analytics_daily_jobs.jobs_completed + excluded.jobs_completed,
  jobs_failed = analytics_daily_jobs.jobs_failed + excluded.jobs_failed,
  jobs_retrieved = analytics_daily_jobs.jobs_retrieved + excluded.jobs_retrieved,
  jobs_reaped = analytics_daily_jobs.jobs_reaped + excluded.jobs_reaped,
  updated_at = now();
`

const QSelectJobCounters = `--sql 0f0557a2-1731-4fc6-8cbe-8540b1d2b6df
select
  day,
  jobs_submitted,
  jobs_completed,
  jobs_failed,
  jobs_retrieved,
  jobs_reaped,
  updated_at
from analytics_daily_jobs
where day = $1;
`

const QCreateJobCountersTable = `--sql 9a3e6d21-47c8-4f5b-b0d2-6e1f8c7a2d43
create table if not exists analytics_daily_jobs (
  day date primary key,
  jobs_submitted integer not null default 0,
  jobs_completed integer not null default 0,
  jobs_failed integer not null default 0,
  jobs_retrieved integer not null default 0,
  jobs_reaped integer not null default 0,
  updated_at timestamptz not null default now()
);
`
