package sqlinline

const QReserveCredits = `--sql dd8d70b4-1863-4044-9b06-1bee353cecea
update users
set credits = credits - $2::int,
    updated_at = now()
where id = $1::uuid
  and credits >= $2::int
returning credits;
`

// QRefundCredits records the refund event and credits the user in one
// statement. A second refund for the same task inserts nothing and so
// updates nothing.
const QRefundCredits = `--sql f17dede2-04bf-4f76-877d-1cd59c6e5671
with ev as (
  insert into credit_events (task_id, kind, user_id, amount)
  values ($2::uuid, 'refund', $1::uuid, $3::int)
  on conflict (task_id, kind) do nothing
  returning user_id, amount
)
update users u
set credits = u.credits + ev.amount,
    updated_at = now()
from ev
where u.id = ev.user_id
returning u.credits;
`

const QSetUserPlan = `--sql 6ee54668-903f-4e5c-9bdc-12888bef3476
update users
set plan = $2::text,
    credits = $3::int,
    images_generated_this_month = 0,
    month_reset_at = $4::timestamptz,
    updated_at = $5::timestamptz
where id = $1::uuid
returning
  id::text, phone, name, plan, credits, images_generated_this_month, month_reset_at,
  image_history, video_history, billing_history, created_at, updated_at;
`

const QResetMonthlyUsage = `--sql c4bfe70c-3546-44ab-8aff-07948539a929
update users
set images_generated_this_month = 0,
    month_reset_at = $2::timestamptz,
    updated_at = $1::timestamptz
where month_reset_at <= $1::timestamptz;
`
